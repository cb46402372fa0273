package upstox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/models"
)

func TestRequiredMargin_Success(t *testing.T) {
	var gotAuth string
	var gotBody marginRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, marginPath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "success", "data": {"required_margin": 98765.43, "final_margin": 98765.43}}`))
	}))
	defer server.Close()

	client := NewMarginClient(zerolog.Nop(), StaticToken("tok-1"), WithMarginBaseURL(server.URL))

	margin, err := client.RequiredMargin(context.Background(), "NSE_FO|54321", 15, models.TransactionSell)
	require.NoError(t, err)
	assert.Equal(t, 98765.43, margin)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	require.Len(t, gotBody.Instruments, 1)
	inst := gotBody.Instruments[0]
	assert.Equal(t, "NSE_FO|54321", inst.InstrumentKey)
	assert.Equal(t, 15, inst.Quantity)
	assert.Equal(t, "SELL", inst.TransactionType)
	assert.Equal(t, "D", inst.Product)
}

func TestRequiredMargin_MissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Success status but no required_margin in the payload.
		w.Write([]byte(`{"status": "success", "data": {"final_margin": 100}}`))
	}))
	defer server.Close()

	client := NewMarginClient(zerolog.Nop(), StaticToken("tok"), WithMarginBaseURL(server.URL))

	_, err := client.RequiredMargin(context.Background(), "NSE_FO|1", 25, models.TransactionBuy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMarginCalculationFailed))
}

func TestRequiredMargin_MissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success"}`))
	}))
	defer server.Close()

	client := NewMarginClient(zerolog.Nop(), StaticToken("tok"), WithMarginBaseURL(server.URL))

	_, err := client.RequiredMargin(context.Background(), "NSE_FO|1", 25, models.TransactionBuy)
	assert.True(t, errors.Is(err, errors.ErrMarginCalculationFailed))
}

func TestRequiredMargin_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewMarginClient(zerolog.Nop(), StaticToken("tok"), WithMarginBaseURL(server.URL))

	_, err := client.RequiredMargin(context.Background(), "NSE_FO|1", 25, models.TransactionBuy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))

	var upstream *errors.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
}

func TestRequiredMargin_NoToken(t *testing.T) {
	client := NewMarginClient(zerolog.Nop(), StaticToken(""))

	_, err := client.RequiredMargin(context.Background(), "NSE_FO|1", 25, models.TransactionBuy)
	assert.True(t, errors.Is(err, errors.ErrNotAuthenticated))
}
