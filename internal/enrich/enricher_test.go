package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/models"
	"premium-scanner/internal/reference"
)

// mapInstruments is an in-memory InstrumentSource.
type mapInstruments map[string]string

func (m mapInstruments) Download(ctx context.Context) (map[string]string, error) { return m, nil }

// mapLots is an in-memory LotSizeSource.
type mapLots map[string]int

func (m mapLots) Download(ctx context.Context) (map[string]int, error) { return m, nil }

// fakeMargin returns a margin derived from the instrument key, failing for
// keys listed in fail.
type fakeMargin struct {
	mu      sync.Mutex
	calls   int
	fail    map[string]error
	margins map[string]float64
}

func (f *fakeMargin) RequiredMargin(ctx context.Context, instrumentKey string, quantity int, transaction models.TransactionType) (float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err, ok := f.fail[instrumentKey]; ok {
		return 0, err
	}
	if m, ok := f.margins[instrumentKey]; ok {
		return m, nil
	}
	return 50000, nil
}

const testLotSize = 15

var testExpiry = models.NewDate(2024, time.December, 24)

// testRows builds n put rows with distinct strikes, plus a resolver whose
// reference tables cover all of them.
func testRows(n int) ([]models.OptionQuoteRow, *reference.Resolver) {
	rows := make([]models.OptionQuoteRow, n)
	instruments := mapInstruments{}
	for i := range rows {
		strike := float64(47000 + 100*i)
		rows[i] = models.OptionQuoteRow{
			InstrumentName: "BANKNIFTY",
			ExpiryDate:     testExpiry,
			StrikePrice:    strike,
			Side:           models.SidePut,
			Price:          100 + float64(i),
		}
		instruments[rows[i].TradingSymbol()] = fmt.Sprintf("NSE_FO|%d", i)
	}

	resolver := reference.NewResolver(zerolog.Nop(), reference.ResolverConfig{
		Instruments: instruments,
		Lots:        mapLots{"BANKNIFTY": testLotSize},
	})
	return rows, resolver
}

func TestEnrich_EmptyInput(t *testing.T) {
	rows, resolver := testRows(0)
	e := New(zerolog.Nop(), resolver, &fakeMargin{}, Config{Workers: 4})

	result, err := e.Enrich(context.Background(), rows)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Failures)
}

func TestEnrich_ComputesMarginAndPremium(t *testing.T) {
	rows, resolver := testRows(3)
	margin := &fakeMargin{margins: map[string]float64{
		"NSE_FO|0": 90000,
		"NSE_FO|1": 91000,
		"NSE_FO|2": 92000,
	}}
	e := New(zerolog.Nop(), resolver, margin, Config{Workers: 2})

	result, err := e.Enrich(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	for i, row := range result.Rows {
		assert.Equal(t, 90000+float64(i)*1000, row.MarginRequired)
		assert.Equal(t, rows[i].Price*testLotSize, row.PremiumEarned)
	}
}

func TestEnrich_PreservesInputOrder(t *testing.T) {
	for _, workers := range []int{1, 4, 32} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			rows, resolver := testRows(40)
			e := New(zerolog.Nop(), resolver, &fakeMargin{}, Config{Workers: workers})

			result, err := e.Enrich(context.Background(), rows)
			require.NoError(t, err)
			require.Len(t, result.Rows, len(rows))

			for i, row := range result.Rows {
				assert.Equal(t, rows[i].StrikePrice, row.StrikePrice,
					"row %d out of order with %d workers", i, workers)
			}
		})
	}
}

func TestEnrich_FailFastByDefault(t *testing.T) {
	rows, resolver := testRows(20)
	margin := &fakeMargin{fail: map[string]error{
		"NSE_FO|5": errors.Wrap(errors.ErrMarginCalculationFailed, "boom"),
	}}
	e := New(zerolog.Nop(), resolver, margin, Config{Workers: 4})

	result, err := e.Enrich(context.Background(), rows)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, errors.ErrMarginCalculationFailed))

	var rowErr *errors.RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, "margin", rowErr.Stage)
}

func TestEnrich_PartialCollectsFailures(t *testing.T) {
	rows, resolver := testRows(10)
	margin := &fakeMargin{fail: map[string]error{
		"NSE_FO|2": errors.Wrap(errors.ErrMarginCalculationFailed, "boom"),
		"NSE_FO|7": errors.Wrap(errors.ErrMarginCalculationFailed, "boom"),
	}}
	e := New(zerolog.Nop(), resolver, margin, Config{Workers: 4, Partial: true})

	result, err := e.Enrich(context.Background(), rows)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 8)
	require.Len(t, result.Failures, 2)

	failed := map[float64]bool{}
	for _, f := range result.Failures {
		failed[f.Key.StrikePrice] = true
		assert.True(t, errors.Is(f.Err, errors.ErrMarginCalculationFailed))
	}
	assert.True(t, failed[rows[2].StrikePrice])
	assert.True(t, failed[rows[7].StrikePrice])

	// Surviving rows keep their relative order.
	last := 0.0
	for _, row := range result.Rows {
		assert.Greater(t, row.StrikePrice, last)
		last = row.StrikePrice
	}
}

func TestEnrich_PartialUnresolvedRow(t *testing.T) {
	rows, resolver := testRows(4)
	// A strike missing from the instrument index fails at the resolve stage.
	rows = append(rows, models.OptionQuoteRow{
		InstrumentName: "BANKNIFTY",
		ExpiryDate:     testExpiry,
		StrikePrice:    99999,
		Side:           models.SidePut,
		Price:          1.5,
	})

	e := New(zerolog.Nop(), resolver, &fakeMargin{}, Config{Workers: 2, Partial: true})

	result, err := e.Enrich(context.Background(), rows)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 4)
	require.Len(t, result.Failures, 1)
	assert.True(t, errors.Is(result.Failures[0].Err, errors.ErrInstrumentNotFound))

	var rowErr *errors.RowError
	require.True(t, errors.As(result.Failures[0].Err, &rowErr))
	assert.Equal(t, "resolve", rowErr.Stage)
}

func TestEnrich_WarmFailureAborts(t *testing.T) {
	resolver := reference.NewResolver(zerolog.Nop(), reference.ResolverConfig{
		Instruments: failingInstruments{},
		Lots:        mapLots{},
	})
	margin := &fakeMargin{}
	e := New(zerolog.Nop(), resolver, margin, Config{Workers: 4, Partial: true})

	rows, _ := testRows(5)
	_, err := e.Enrich(context.Background(), rows)
	require.Error(t, err)
	assert.Zero(t, margin.calls, "no margin calls before the reference tables are ready")
}

type failingInstruments struct{}

func (failingInstruments) Download(ctx context.Context) (map[string]string, error) {
	return nil, errors.Wrap(errors.ErrUpstreamUnavailable, "instrument dump unreachable")
}

func TestEnrich_TransactionTypeBySide(t *testing.T) {
	expiry := testExpiry
	put := models.OptionQuoteRow{InstrumentName: "NIFTY", ExpiryDate: expiry, StrikePrice: 22500, Side: models.SidePut, Price: 80}
	call := models.OptionQuoteRow{InstrumentName: "NIFTY", ExpiryDate: expiry, StrikePrice: 22500, Side: models.SideCall, Price: 90}

	resolver := reference.NewResolver(zerolog.Nop(), reference.ResolverConfig{
		Instruments: mapInstruments{
			put.TradingSymbol():  "NSE_FO|put",
			call.TradingSymbol(): "NSE_FO|call",
		},
		Lots: mapLots{"NIFTY": 25},
	})

	var mu sync.Mutex
	transactions := map[string]models.TransactionType{}
	margin := &recordingMargin{record: func(key string, tx models.TransactionType) {
		mu.Lock()
		transactions[key] = tx
		mu.Unlock()
	}}

	e := New(zerolog.Nop(), resolver, margin, Config{Workers: 2})
	_, err := e.Enrich(context.Background(), []models.OptionQuoteRow{put, call})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionBuy, transactions["NSE_FO|put"])
	assert.Equal(t, models.TransactionSell, transactions["NSE_FO|call"])
}

type recordingMargin struct {
	record func(key string, tx models.TransactionType)
}

func (r *recordingMargin) RequiredMargin(ctx context.Context, instrumentKey string, quantity int, transaction models.TransactionType) (float64, error) {
	r.record(instrumentKey, transaction)
	return 10000, nil
}
