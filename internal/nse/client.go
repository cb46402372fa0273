// Package nse fetches option-chain quotes from the NSE public API.
package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/internal/models"
)

const (
	defaultBaseURL = "https://www.nseindia.com"
	chainPath      = "/api/option-chain-indices"
)

// The NSE API rejects requests that do not look like they come from a
// browser, so every call carries this header set.
var browserHeaders = map[string]string{
	"accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"accept-language":           "en-US,en;q=0.9,en-IN;q=0.8",
	"cache-control":             "max-age=0",
	"upgrade-insecure-requests": "1",
	"user-agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
}

// Client talks to the NSE option-chain endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the NSE base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client. A cookie jar is attached if the
// client has none, since the NSE session cookie is required after warm-up.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates an NSE client.
func NewClient(logger zerolog.Logger, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		baseURL:    defaultBaseURL,
		logger:     logging.WithComponent(logger, "nse"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		c.httpClient.Jar = jar
	}
	return c
}

type chainQuery struct {
	Symbol string `url:"symbol"`
}

// FetchChain retrieves the option chain for a symbol, filtered to the given
// expiry and, when side is non-empty, to that side only. An expiry not
// present in the chain yields an empty slice, not an error.
func (c *Client) FetchChain(ctx context.Context, symbol string, expiry models.Date, side models.OptionSide) ([]models.OptionQuoteRow, error) {
	doc, err := c.fetchChainDocument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return flattenChain(symbol, doc, expiry, side), nil
}

// Expiries returns the expiry dates currently listed for a symbol.
func (c *Client) Expiries(ctx context.Context, symbol string) ([]models.Date, error) {
	doc, err := c.fetchChainDocument(ctx, symbol)
	if err != nil {
		return nil, err
	}

	dates := make([]models.Date, 0, len(doc.Records.ExpiryDates))
	for _, s := range doc.Records.ExpiryDates {
		d, err := parseExchangeDate(s)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func (c *Client) fetchChainDocument(ctx context.Context, symbol string) (*chainDocument, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol must not be empty")
	}

	vals, err := query.Values(chainQuery{Symbol: symbol})
	if err != nil {
		return nil, fmt.Errorf("encoding chain query: %w", err)
	}
	endpoint := c.baseURL + chainPath + "?" + vals.Encode()

	doc, err := c.getChain(ctx, endpoint)
	if err == nil {
		return doc, nil
	}

	// The NSE API serves an HTML challenge page until session cookies are
	// established. Hit the home page once, then retry.
	c.logger.Debug().Err(err).Msg("chain fetch failed, warming up session cookies")
	if warmErr := c.warmUp(ctx); warmErr != nil {
		return nil, warmErr
	}
	return c.getChain(ctx, endpoint)
}

func (c *Client) getChain(ctx context.Context, endpoint string) (*chainDocument, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building chain request: %w", err)
	}
	applyBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	logging.LogAPICall(c.logger, http.MethodGet, chainPath, time.Since(start), err)
	if err != nil {
		return nil, errors.NewUpstreamError("nse", chainPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewUpstreamStatusError("nse", chainPath, resp.StatusCode)
	}

	var doc chainDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.NewUpstreamError("nse", chainPath, fmt.Errorf("decoding chain response: %w", err))
	}
	return &doc, nil
}

func (c *Client) warmUp(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("building warm-up request: %w", err)
	}
	applyBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewUpstreamError("nse", "/", err)
	}
	defer resp.Body.Close()
	return nil
}

func applyBrowserHeaders(req *http.Request) {
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
}
