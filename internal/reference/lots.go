package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/pkg/utils"
)

// defaultLotSizeURL is a futures scan that lists every tradable F&O symbol
// with its lot size.
const defaultLotSizeURL = "https://open-web-scanx.dhan.co/scanx/allfut"

// lotScanRequest is the fixed scan payload: all futures, every expiry.
type lotScanRequest struct {
	Data lotScanParams `json:"Data"`
}

type lotScanParams struct {
	Seg        int    `json:"Seg"`
	Instrument string `json:"Instrument"`
	Count      int    `json:"Count"`
	PageNo     int    `json:"Page_no"`
	ExpCode    int    `json:"ExpCode"`
}

type lotScanResponse struct {
	Data struct {
		List []struct {
			Symbol string `json:"sym"`
			FoDt   []struct {
				LotType string `json:"lot_type"`
			} `json:"fo_dt"`
		} `json:"list"`
	} `json:"data"`
}

// LotSizeDownloader fetches the lot-size reference table.
type LotSizeDownloader struct {
	httpClient *http.Client
	url        string
	logger     zerolog.Logger
}

// NewLotSizeDownloader creates a downloader for the lot-size table.
func NewLotSizeDownloader(logger zerolog.Logger, httpClient *http.Client, url string) *LotSizeDownloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if url == "" {
		url = defaultLotSizeURL
	}
	return &LotSizeDownloader{
		httpClient: httpClient,
		url:        url,
		logger:     logging.WithComponent(logger, "reference"),
	}
}

// Download fetches the scan and returns a symbol to lot-size index.
func (d *LotSizeDownloader) Download(ctx context.Context) (map[string]int, error) {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = 2

	return utils.RetryWithResult(ctx, cfg, func() (map[string]int, error) {
		return d.download(ctx)
	})
}

func (d *LotSizeDownloader) download(ctx context.Context) (map[string]int, error) {
	payload, err := json.Marshal(lotScanRequest{
		Data: lotScanParams{Seg: 2, Instrument: "FUT", Count: 200, PageNo: 1, ExpCode: -1},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding lot scan request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building lot scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := d.httpClient.Do(req)
	logging.LogAPICall(d.logger, http.MethodPost, d.url, time.Since(start), err)
	if err != nil {
		return nil, errors.NewUpstreamError("lot-sizes", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewUpstreamStatusError("lot-sizes", d.url, resp.StatusCode)
	}

	var scan lotScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
		return nil, errors.NewUpstreamError("lot-sizes", d.url, fmt.Errorf("decoding lot scan: %w", err))
	}

	lots := make(map[string]int, len(scan.Data.List))
	for _, item := range scan.Data.List {
		if item.Symbol == "" || len(item.FoDt) == 0 {
			continue
		}
		lot, err := parseLotType(item.FoDt[0].LotType)
		if err != nil {
			d.logger.Debug().Str("symbol", item.Symbol).Str("lot_type", item.FoDt[0].LotType).
				Msg("skipping unparseable lot size")
			continue
		}
		lots[item.Symbol] = lot
	}

	d.logger.Info().Int("symbols", len(lots)).Msg("lot-size table indexed")
	return lots, nil
}

// parseLotType extracts the integer lot size from a scan value such as
// "30" or "30 Lots": the leading numeric token is the lot size.
func parseLotType(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty lot size value")
	}
	lot, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parsing lot size %q: %w", s, err)
	}
	return lot, nil
}
