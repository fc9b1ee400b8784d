package importer

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// ReadCSV reads trade details from CSV with a header row naming the
// columns (tradeId, openDate, closeDate, symbol, side, entry, exit, qty,
// pnl, status). Column order does not matter. Rows without a tradeId are
// given a fresh one.
func ReadCSV(r io.Reader) ([]models.TradeDetails, error) {
	var rows []models.TradeDetails
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	for i := range rows {
		if rows[i].TradeID == "" {
			rows[i].TradeID = uuid.NewString()
		}
	}
	return rows, nil
}

// WriteCSV writes trade details as CSV with a header row.
func WriteCSV(w io.Writer, details []models.TradeDetails) error {
	if details == nil {
		details = []models.TradeDetails{}
	}
	if err := gocsv.Marshal(&details, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// Validate checks imported rows before they are written. A nil validator
// uses the default rules in the local zone.
func Validate(v *security.TradeValidator, details []models.TradeDetails) error {
	if v == nil {
		v = security.NewTradeValidator(nil)
	}
	return v.ValidateAll(details)
}
