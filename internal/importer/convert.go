package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trade-journal/internal/models"
)

// ImportedTrade is one row as returned by the parsing service.
type ImportedTrade struct {
	TradeID   string  `json:"tradeId"`
	OpenDate  string  `json:"OpenDate"`
	CloseDate string  `json:"CloseDate"`
	Symbol    string  `json:"Symbol"`
	Side      string  `json:"Side"`
	Entry     float64 `json:"Entry"`
	Exit      float64 `json:"Exit"`
	Qty       float64 `json:"Qty"`
	PnL       string  `json:"P&L"`
	Status    string  `json:"Status"`
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]+`)

// Convert maps a parsed row to trade details. Every row gets a fresh trade
// id; dates are reduced to their UTC calendar day; a "win" status becomes
// take-profit and anything else stop-loss.
func Convert(row ImportedTrade, loc *time.Location) (models.TradeDetails, error) {
	open, err := dayOf(row.OpenDate, loc)
	if err != nil {
		return models.TradeDetails{}, fmt.Errorf("invalid OpenDate %q: %w", row.OpenDate, err)
	}
	closed, err := dayOf(row.CloseDate, loc)
	if err != nil {
		return models.TradeDetails{}, fmt.Errorf("invalid CloseDate %q: %w", row.CloseDate, err)
	}
	pnl, err := parseMoney(row.PnL)
	if err != nil {
		return models.TradeDetails{}, fmt.Errorf("invalid P&L %q: %w", row.PnL, err)
	}

	status := models.StatusStopLoss
	if strings.EqualFold(strings.TrimSpace(row.Status), "win") {
		status = models.StatusTakeProfit
	}

	return models.TradeDetails{
		TradeID:   uuid.NewString(),
		OpenDate:  open,
		CloseDate: closed,
		Symbol:    strings.TrimSpace(row.Symbol),
		Side:      models.Side(strings.ToLower(strings.TrimSpace(row.Side))),
		Entry:     row.Entry,
		Exit:      row.Exit,
		Qty:       row.Qty,
		PnL:       pnl,
		Status:    status,
	}, nil
}

// ConvertAll converts every row, failing on the first bad one.
func ConvertAll(rows []ImportedTrade, loc *time.Location) ([]models.TradeDetails, error) {
	out := make([]models.TradeDetails, 0, len(rows))
	for i, row := range rows {
		d, err := Convert(row, loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func dayOf(s string, loc *time.Location) (string, error) {
	t, err := models.ParseDate(strings.TrimSpace(s), loc)
	if err != nil {
		return "", err
	}
	return t.UTC().Format("2006-01-02"), nil
}

// parseMoney reads amounts such as "$1,234.50" or "-40.00 USD".
func parseMoney(s string) (float64, error) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits")
	}
	return strconv.ParseFloat(cleaned, 64)
}
