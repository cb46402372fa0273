package reference

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-scanner/internal/errors"
)

func gzipJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	gz := gzip.NewWriter(w)
	require.NoError(t, json.NewEncoder(gz).Encode(v))
	require.NoError(t, gz.Close())
}

func TestInstrumentDownloader_IndexesDump(t *testing.T) {
	dump := []instrumentEntry{
		{TradingSymbol: "BANKNIFTY 48000 PE 24 DEC 24", InstrumentKey: "NSE_FO|12345"},
		{TradingSymbol: "NIFTY 22500 CE 26 DEC 24", InstrumentKey: "NSE_FO|67890"},
		{TradingSymbol: "", InstrumentKey: "NSE_FO|0"},     // skipped
		{TradingSymbol: "GHOST 1 PE 01 JAN 25", InstrumentKey: ""}, // skipped
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gzipJSON(t, w, dump)
	}))
	defer server.Close()

	d := NewInstrumentDownloader(zerolog.Nop(), server.Client(), server.URL)
	index, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Len(t, index, 2)
	assert.Equal(t, "NSE_FO|12345", index["BANKNIFTY 48000 PE 24 DEC 24"])
	assert.Equal(t, "NSE_FO|67890", index["NIFTY 22500 CE 26 DEC 24"])
}

func TestInstrumentDownloader_RetriesOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gzipJSON(t, w, []instrumentEntry{{TradingSymbol: "X 1 PE 01 JAN 25", InstrumentKey: "NSE_FO|1"}})
	}))
	defer server.Close()

	d := NewInstrumentDownloader(zerolog.Nop(), server.Client(), server.URL)
	index, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Len(t, index, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestInstrumentDownloader_PersistentFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewInstrumentDownloader(zerolog.Nop(), server.Client(), server.URL)
	_, err := d.Download(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))
	assert.Equal(t, int32(2), hits.Load(), "expected exactly one retry")
}

func TestInstrumentDownloader_BadGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not gzip"))
	}))
	defer server.Close()

	d := NewInstrumentDownloader(zerolog.Nop(), server.Client(), server.URL)
	_, err := d.Download(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))
}
