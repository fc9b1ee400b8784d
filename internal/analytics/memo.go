package analytics

import (
	"sync"

	"trade-journal/internal/models"
)

// Memo caches the last aggregation, keyed by the trade store version.
// A new version means a new trade list; the same version means the same list.
type Memo struct {
	engine *Engine

	mu      sync.Mutex
	version uint64
	valid   bool
	result  Aggregation
}

// NewMemo creates a memo over engine.
func NewMemo(engine *Engine) *Memo {
	if engine == nil {
		engine = NewEngine()
	}
	return &Memo{engine: engine}
}

// Get returns the cached aggregation for version, or runs load and
// aggregates its result. The returned maps are shared and must not be
// modified.
func (m *Memo) Get(version uint64, load func() []models.TradeDetails) Aggregation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.version == version {
		return m.result
	}

	m.result = m.engine.Aggregate(load())
	m.version = version
	m.valid = true
	return m.result
}

// Invalidate drops the cached result.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	m.valid = false
	m.mu.Unlock()
}
