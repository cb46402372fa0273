// Package reference resolves instrument keys and lot sizes from externally
// published reference tables.
package reference

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/pkg/utils"
)

// defaultInstrumentURL is the published gzip-compressed dump of all NSE
// instruments with their identifying fields and opaque instrument keys.
const defaultInstrumentURL = "https://assets.upstox.com/market-quote/instruments/exchange/NSE.json.gz"

// instrumentEntry is one record of the instrument dump. Only the two fields
// the resolver needs are decoded.
type instrumentEntry struct {
	TradingSymbol string `json:"trading_symbol"`
	InstrumentKey string `json:"instrument_key"`
}

// InstrumentDownloader fetches and indexes the instrument dump.
type InstrumentDownloader struct {
	httpClient *http.Client
	url        string
	logger     zerolog.Logger
}

// NewInstrumentDownloader creates a downloader for the instrument dump.
func NewInstrumentDownloader(logger zerolog.Logger, httpClient *http.Client, url string) *InstrumentDownloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if url == "" {
		url = defaultInstrumentURL
	}
	return &InstrumentDownloader{
		httpClient: httpClient,
		url:        url,
		logger:     logging.WithComponent(logger, "reference"),
	}
}

// Download fetches the compressed dump and returns a trading-symbol to
// instrument-key index. The dump is large; this is meant to run at most once
// per process (or per cache TTL).
func (d *InstrumentDownloader) Download(ctx context.Context) (map[string]string, error) {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = 2

	return utils.RetryWithResult(ctx, cfg, func() (map[string]string, error) {
		return d.download(ctx)
	})
}

func (d *InstrumentDownloader) download(ctx context.Context) (map[string]string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building instrument request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	logging.LogAPICall(d.logger, http.MethodGet, d.url, time.Since(start), err)
	if err != nil {
		return nil, errors.NewUpstreamError("instruments", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewUpstreamStatusError("instruments", d.url, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamError("instruments", d.url, fmt.Errorf("decompressing dump: %w", err))
	}
	defer gz.Close()

	var entries []instrumentEntry
	if err := json.NewDecoder(gz).Decode(&entries); err != nil {
		return nil, errors.NewUpstreamError("instruments", d.url, fmt.Errorf("decoding dump: %w", err))
	}

	index := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.TradingSymbol == "" || e.InstrumentKey == "" {
			continue
		}
		index[e.TradingSymbol] = e.InstrumentKey
	}

	d.logger.Info().Int("instruments", len(index)).Msg("instrument dump indexed")
	return index, nil
}
