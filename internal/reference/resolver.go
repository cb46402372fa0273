package reference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/internal/models"
	"premium-scanner/internal/store"
)

// InstrumentSource provides the trading-symbol to instrument-key index.
type InstrumentSource interface {
	Download(ctx context.Context) (map[string]string, error)
}

// LotSizeSource provides the symbol to lot-size index.
type LotSizeSource interface {
	Download(ctx context.Context) (map[string]int, error)
}

// Resolver serves instrument-key and lot-size lookups. Each table is
// populated at most once per process and is read-only afterwards, so lookups
// are safe from concurrent enrichment workers once populated.
//
// When a cache store is configured, a table refreshed within its TTL is
// served from the cache without touching the network.
type Resolver struct {
	instruments     InstrumentSource
	lots            LotSizeSource
	cache           *store.ReferenceStore
	instrumentTTL   time.Duration
	lotTTL          time.Duration
	logger          zerolog.Logger
	instrumentsOnce sync.Once
	lotsOnce        sync.Once
	instrumentIdx   map[string]string
	lotIdx          map[string]int
	instrumentsErr  error
	lotsErr         error
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Instruments InstrumentSource
	Lots        LotSizeSource
	// Cache is optional; without it every process re-downloads both tables.
	Cache         *store.ReferenceStore
	InstrumentTTL time.Duration
	LotTTL        time.Duration
}

// NewResolver creates a Resolver.
func NewResolver(logger zerolog.Logger, cfg ResolverConfig) *Resolver {
	return &Resolver{
		instruments:   cfg.Instruments,
		lots:          cfg.Lots,
		cache:         cfg.Cache,
		instrumentTTL: cfg.InstrumentTTL,
		lotTTL:        cfg.LotTTL,
		logger:        logging.WithComponent(logger, "resolver"),
	}
}

// Warm populates both tables eagerly. Call before concurrent enrichment so
// the maps are built and frozen ahead of the fan-out.
func (r *Resolver) Warm(ctx context.Context) error {
	if err := r.ensureInstruments(ctx); err != nil {
		return err
	}
	return r.ensureLots(ctx)
}

// ResolveInstrumentKey returns the external instrument identifier for a
// contract. Strikes or expiries not currently listed legitimately miss.
func (r *Resolver) ResolveInstrumentKey(ctx context.Context, name string, expiry models.Date, strike float64, side models.OptionSide) (string, error) {
	if err := r.ensureInstruments(ctx); err != nil {
		return "", err
	}

	symbol := models.TradingSymbol(name, strike, side, expiry)
	key, ok := r.instrumentIdx[symbol]
	if !ok {
		return "", errors.NewLookupError("instrument-keys", symbol, errors.ErrInstrumentNotFound)
	}
	return key, nil
}

// ResolveLotSize returns the lot size for an instrument name.
func (r *Resolver) ResolveLotSize(ctx context.Context, name string) (int, error) {
	if err := r.ensureLots(ctx); err != nil {
		return 0, err
	}

	lot, ok := r.lotIdx[name]
	if !ok {
		return 0, errors.NewLookupError("lot-sizes", name, errors.ErrLotSizeNotFound)
	}
	return lot, nil
}

func (r *Resolver) ensureInstruments(ctx context.Context) error {
	r.instrumentsOnce.Do(func() {
		r.instrumentIdx, r.instrumentsErr = loadTable(
			ctx, r.cache, store.TableInstrumentKeys, r.instrumentTTL,
			r.instruments.Download,
			func(c *store.ReferenceStore) (map[string]string, error) { return c.LoadInstrumentKeys() },
			func(c *store.ReferenceStore, m map[string]string) error { return c.SaveInstrumentKeys(m) },
			r.logger,
		)
	})
	return r.instrumentsErr
}

func (r *Resolver) ensureLots(ctx context.Context) error {
	r.lotsOnce.Do(func() {
		r.lotIdx, r.lotsErr = loadTable(
			ctx, r.cache, store.TableLotSizes, r.lotTTL,
			r.lots.Download,
			func(c *store.ReferenceStore) (map[string]int, error) { return c.LoadLotSizes() },
			func(c *store.ReferenceStore, m map[string]int) error { return c.SaveLotSizes(m) },
			r.logger,
		)
	})
	return r.lotsErr
}

// loadTable serves a table from the cache when fresh, otherwise downloads it
// and refreshes the cache. Cache write failures are logged, not fatal: the
// downloaded table still serves the run.
func loadTable[V any](
	ctx context.Context,
	cache *store.ReferenceStore,
	table string,
	ttl time.Duration,
	download func(context.Context) (map[string]V, error),
	loadCached func(*store.ReferenceStore) (map[string]V, error),
	saveCached func(*store.ReferenceStore, map[string]V) error,
	logger zerolog.Logger,
) (map[string]V, error) {
	if cache != nil && ttl > 0 {
		fresh, err := cache.Fresh(table, ttl)
		if err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("cache freshness check failed")
		} else if fresh {
			idx, err := loadCached(cache)
			if err == nil && len(idx) > 0 {
				logger.Debug().Str("table", table).Int("entries", len(idx)).Msg("served from cache")
				return idx, nil
			}
			if err != nil {
				logger.Warn().Err(err).Str("table", table).Msg("cache read failed, re-downloading")
			}
		}
	}

	idx, err := download(ctx)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := saveCached(cache, idx); err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("cache write failed")
		}
	}
	return idx, nil
}
