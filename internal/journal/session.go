package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/blob"
	"trade-journal/internal/docstore"
	"trade-journal/internal/metrics"
	"trade-journal/internal/security"
)

// Session bundles the store, its sync controller, and the mutation
// dispatcher for one signed-in user.
type Session struct {
	Store   *TradeStore
	Sync    *SyncController
	Mutator *Mutator
}

// NewSession wires a store, controller, and mutator together. Nothing is
// subscribed until Open.
func NewSession(docs docstore.DocumentStore, blobs blob.ObjectStore, validator *security.TradeValidator, logger zerolog.Logger) *Session {
	store := NewTradeStore()
	ctrl := NewSyncController(docs, store, logger)
	return &Session{
		Store:   store,
		Sync:    ctrl,
		Mutator: NewMutator(docs, blobs, store, ctrl, validator, logger),
	}
}

// SetPublisher routes store events from both the controller and the mutator.
func (s *Session) SetPublisher(pub Publisher) {
	s.Sync.SetPublisher(pub)
	s.Mutator.SetPublisher(pub)
}

// SetMetrics instruments the controller and the mutator.
func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.Sync.SetMetrics(m)
	s.Mutator.SetMetrics(m)
}

// SetGuard applies the read-only gate and audit trail to the mutator.
func (s *Session) SetGuard(access *security.AccessController, audit *security.AuditLogger) {
	s.Mutator.SetGuard(access, audit)
}

// Open subscribes to the user's trades and waits up to timeout for the
// first snapshot. A zero timeout returns without waiting. ctx bounds the
// subscription lifetime.
func (s *Session) Open(ctx context.Context, uid string, timeout time.Duration) error {
	if err := s.Sync.Start(ctx, uid); err != nil {
		return err
	}
	if timeout <= 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Sync.WaitReady(waitCtx)
}

// Close cancels the subscription and clears the trade list.
func (s *Session) Close() {
	s.Sync.Stop()
	s.Store.reset()
}

// UserID returns the user the session is open for.
func (s *Session) UserID() string {
	return s.Sync.UserID()
}
