// Package export writes enrichment results to flat tabular files.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"premium-scanner/internal/models"
)

// WriteCSV writes enriched rows to w, one row per contract, headers from the
// row's csv tags.
func WriteCSV(w io.Writer, rows []models.EnrichedRow) error {
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("marshaling rows to CSV: %w", err)
	}
	return nil
}

// WriteCSVFile writes enriched rows to a file, creating parent directories
// as needed. The file is only created once enrichment has fully succeeded,
// so a failed run never leaves a partial export behind.
func WriteCSVFile(path string, rows []models.EnrichedRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	return WriteCSV(f, rows)
}

// WriteChainCSV writes un-enriched quote rows, for chain-only exports.
func WriteChainCSV(w io.Writer, rows []models.OptionQuoteRow) error {
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("marshaling rows to CSV: %w", err)
	}
	return nil
}

// WriteChainCSVFile writes un-enriched quote rows to a file.
func WriteChainCSVFile(path string, rows []models.OptionQuoteRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	return WriteChainCSV(f, rows)
}
