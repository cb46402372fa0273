package enrich

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/internal/models"
	"premium-scanner/internal/reference"
)

// MarginAPI is the remote margin-calculation capability the enricher needs.
type MarginAPI interface {
	RequiredMargin(ctx context.Context, instrumentKey string, quantity int, transaction models.TransactionType) (float64, error)
}

// RowFailure is a diagnostic for a row that could not be enriched when
// partial mode is enabled.
type RowFailure struct {
	Key models.RowKey
	Err error
}

// Result is the outcome of an enrichment run. Rows preserve input order;
// Failures is only populated in partial mode.
type Result struct {
	Rows     []models.EnrichedRow
	Failures []RowFailure
}

// Config configures an Enricher.
type Config struct {
	// Workers bounds the number of concurrent margin calls. Values below 1
	// mean sequential.
	Workers int
	// Partial collects per-row failures instead of aborting the run on the
	// first one.
	Partial bool
}

// Enricher appends margin_required and premium_earned to option quote rows.
// Each row is enriched independently; the only shared state is the
// read-only reference resolver.
type Enricher struct {
	resolver *reference.Resolver
	margin   MarginAPI
	cfg      Config
	logger   zerolog.Logger
}

// New creates an Enricher.
func New(logger zerolog.Logger, resolver *reference.Resolver, margin MarginAPI, cfg Config) *Enricher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Enricher{
		resolver: resolver,
		margin:   margin,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "enrich"),
	}
}

// Enrich processes every row: resolve the instrument key, fetch required
// margin, compute premium from the lot size. By default the first failing
// row aborts the run; in partial mode failed rows become diagnostics and the
// remaining rows are returned. Output order matches input order either way.
func (e *Enricher) Enrich(ctx context.Context, rows []models.OptionQuoteRow) (*Result, error) {
	if len(rows) == 0 {
		return &Result{Rows: []models.EnrichedRow{}}, nil
	}

	// Both reference tables are built and frozen before any worker starts,
	// so the per-row lookups below are lock-free reads.
	if err := e.resolver.Warm(ctx); err != nil {
		return nil, err
	}

	workers := e.cfg.Workers
	if workers > len(rows) {
		workers = len(rows)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		row models.EnrichedRow
		err error
	}
	slots := make([]slot, len(rows))

	pool := newWorkerPool(workers)
	var (
		firstErr error
		errOnce  sync.Once
		done     sync.WaitGroup
	)

	for i := range rows {
		i := i
		done.Add(1)
		submitted := pool.submit(ctx, func() {
			defer done.Done()
			enriched, err := e.enrichRow(ctx, rows[i])
			if err != nil {
				slots[i].err = err
				if !e.cfg.Partial {
					// Fail fast: remember the first failure and stop
					// feeding the pool.
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
				}
				return
			}
			slots[i].row = enriched
		})
		if !submitted {
			done.Done()
			break
		}
	}

	done.Wait()
	pool.stop()

	if firstErr != nil {
		return nil, firstErr
	}

	result := &Result{Rows: make([]models.EnrichedRow, 0, len(rows))}
	for i := range rows {
		if slots[i].err != nil {
			result.Failures = append(result.Failures, RowFailure{Key: rows[i].Key(), Err: slots[i].err})
			continue
		}
		if ctx.Err() != nil && slots[i].row.InstrumentName == "" {
			// Row never ran because the context was cancelled mid-run.
			result.Failures = append(result.Failures, RowFailure{Key: rows[i].Key(), Err: ctx.Err()})
			continue
		}
		result.Rows = append(result.Rows, slots[i].row)
	}

	e.logger.Info().
		Int("rows", len(result.Rows)).
		Int("failures", len(result.Failures)).
		Msg("enrichment complete")

	return result, nil
}

// enrichRow performs the three per-row steps: key resolution, margin call,
// premium computation.
func (e *Enricher) enrichRow(ctx context.Context, row models.OptionQuoteRow) (models.EnrichedRow, error) {
	key := row.Key().String()

	instrumentKey, err := e.resolver.ResolveInstrumentKey(ctx, row.InstrumentName, row.ExpiryDate, row.StrikePrice, row.Side)
	if err != nil {
		return models.EnrichedRow{}, errors.NewRowError(key, "resolve", err)
	}

	lotSize, err := e.resolver.ResolveLotSize(ctx, row.InstrumentName)
	if err != nil {
		return models.EnrichedRow{}, errors.NewRowError(key, "lot-size", err)
	}

	transaction := models.TransactionForSide(row.Side)
	margin, err := e.margin.RequiredMargin(ctx, instrumentKey, lotSize, transaction)
	if err != nil {
		return models.EnrichedRow{}, errors.NewRowError(key, "margin", err)
	}

	return models.EnrichedRow{
		OptionQuoteRow: row,
		MarginRequired: margin,
		PremiumEarned:  row.Price * float64(lotSize),
	}, nil
}
