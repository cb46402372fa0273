package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-scanner/internal/models"
)

func sampleRows() []models.EnrichedRow {
	return []models.EnrichedRow{
		{
			OptionQuoteRow: models.OptionQuoteRow{
				InstrumentName:    "BANKNIFTY",
				ExpiryDate:        models.NewDate(2024, time.December, 24),
				StrikePrice:       48000,
				Side:              models.SidePut,
				Price:             101.25,
				OpenInterest:      1200,
				ChangeInOI:        150,
				TotalTradedVolume: 53000,
				ImpliedVolatility: 14.2,
				LastPrice:         101.5,
				UnderlyingValue:   48123.45,
			},
			MarginRequired: 98765.43,
			PremiumEarned:  1518.75,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	header := lines[0]
	for _, col := range []string{
		"instrument_name", "expiry_date", "strike_price", "side", "price",
		"open_interest", "margin_required", "premium_earned",
	} {
		assert.Contains(t, header, col)
	}

	row := lines[1]
	assert.Contains(t, row, "BANKNIFTY")
	assert.Contains(t, row, "2024-12-24")
	assert.Contains(t, row, "48000")
	assert.Contains(t, row, "PE")
	assert.Contains(t, row, "101.25")
	assert.Contains(t, row, "98765.43")
	assert.Contains(t, row, "1518.75")
}

func TestWriteCSVFile_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "scan.csv")
	require.NoError(t, WriteCSVFile(path, sampleRows()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BANKNIFTY")
}

func TestWriteChainCSV(t *testing.T) {
	rows := []models.OptionQuoteRow{sampleRows()[0].OptionQuoteRow}

	var buf bytes.Buffer
	require.NoError(t, WriteChainCSV(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "instrument_name")
	assert.NotContains(t, out, "margin_required")
	assert.Contains(t, out, "BANKNIFTY")
}

func TestWriteCSV_EmptyRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.EnrichedRow{}))

	// Headers only.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
}
