package upstox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
	"premium-scanner/internal/models"
)

const marginPath = "/v2/charges/margin"

// marginProduct is the fixed product code sent with every margin request
// (intraday-delivery variant "D").
const marginProduct = "D"

// TokenProvider yields a live bearer token for each request.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider for a fixed token string.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", errors.ErrNotAuthenticated
	}
	return string(t), nil
}

// MarginClient calls the margin-calculation endpoint.
type MarginClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     zerolog.Logger
}

// MarginOption configures a MarginClient.
type MarginOption func(*MarginClient)

// WithMarginBaseURL overrides the API host, for tests.
func WithMarginBaseURL(u string) MarginOption {
	return func(c *MarginClient) { c.baseURL = u }
}

// WithMarginTimeout sets the per-call timeout.
func WithMarginTimeout(d time.Duration) MarginOption {
	return func(c *MarginClient) { c.httpClient.Timeout = d }
}

// NewMarginClient creates a margin client.
func NewMarginClient(logger zerolog.Logger, tokens TokenProvider, opts ...MarginOption) *MarginClient {
	c := &MarginClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		logger:     logging.WithComponent(logger, "margin"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marginInstrument struct {
	InstrumentKey   string `json:"instrument_key"`
	Quantity        int    `json:"quantity"`
	TransactionType string `json:"transaction_type"`
	Product         string `json:"product"`
}

type marginRequest struct {
	Instruments []marginInstrument `json:"instruments"`
}

type marginResponse struct {
	Status string `json:"status"`
	Data   *struct {
		RequiredMargin *float64 `json:"required_margin"`
		FinalMargin    float64  `json:"final_margin"`
	} `json:"data"`
}

// RequiredMargin returns the margin required to take the given position in
// one contract. Quantity is the contract's lot size.
func (c *MarginClient) RequiredMargin(ctx context.Context, instrumentKey string, quantity int, transaction models.TransactionType) (float64, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(marginRequest{
		Instruments: []marginInstrument{{
			InstrumentKey:   instrumentKey,
			Quantity:        quantity,
			TransactionType: string(transaction),
			Product:         marginProduct,
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("encoding margin request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+marginPath, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building margin request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	logging.LogAPICall(c.logger, http.MethodPost, marginPath, time.Since(start), err)
	if err != nil {
		return 0, errors.NewUpstreamError("upstox", marginPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errors.NewUpstreamStatusError("upstox", marginPath, resp.StatusCode)
	}

	var body marginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(errors.ErrMarginCalculationFailed, "decoding margin response")
	}
	if body.Data == nil || body.Data.RequiredMargin == nil {
		return 0, errors.Wrapf(errors.ErrMarginCalculationFailed,
			"margin response missing required_margin for %s", instrumentKey)
	}

	return *body.Data.RequiredMargin, nil
}
