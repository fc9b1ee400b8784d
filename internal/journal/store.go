// Package journal holds the client-side trade list and keeps it in sync with
// the user's trades collection.
package journal

import (
	"sync"

	"trade-journal/internal/models"
)

// Status is the lifecycle state of the trade list.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State is a point-in-time view of the store without the trades.
type State struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
}

// TradeStore holds the user's trades as last delivered by the document
// store. Only the sync controller replaces the list; mutations go to the
// remote store and come back through the next snapshot.
type TradeStore struct {
	mu      sync.RWMutex
	trades  []models.Trade
	status  Status
	err     string
	version uint64
}

// NewTradeStore creates an empty store in the idle state.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: []models.Trade{},
		status: StatusIdle,
	}
}

// Trades returns a copy of the trade list.
func (s *TradeStore) Trades() []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Details returns the TradeDetails of every trade, in store order.
func (s *TradeStore) Details() []models.TradeDetails {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TradeDetails, len(s.trades))
	for i, t := range s.trades {
		out[i] = t.Trade
	}
	return out
}

// Find returns the trade with the given id.
func (s *TradeStore) Find(tradeID string) (models.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.trades {
		if t.TradeID == tradeID {
			return t, true
		}
	}
	return models.Trade{}, false
}

// State returns status, error, version, and trade count.
func (s *TradeStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Status:  s.status,
		Error:   s.err,
		Version: s.version,
		Count:   len(s.trades),
	}
}

// Version increases by one each time the trade list is replaced.
func (s *TradeStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *TradeStore) pending() {
	s.mu.Lock()
	s.status = StatusLoading
	s.err = ""
	s.mu.Unlock()
}

func (s *TradeStore) fulfilled() {
	s.mu.Lock()
	s.status = StatusSucceeded
	s.err = ""
	s.mu.Unlock()
}

func (s *TradeStore) rejected(msg string) {
	s.mu.Lock()
	s.status = StatusFailed
	s.err = msg
	s.mu.Unlock()
}

// replace swaps the whole list for a snapshot. No merge, no sort.
func (s *TradeStore) replace(trades []models.Trade) uint64 {
	if trades == nil {
		trades = []models.Trade{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = trades
	s.status = StatusSucceeded
	s.err = ""
	s.version++
	return s.version
}

// reset returns the store to idle with no trades, used on sign-out.
func (s *TradeStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = []models.Trade{}
	s.status = StatusIdle
	s.err = ""
	s.version++
}
