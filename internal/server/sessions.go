package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"trade-journal/internal/analytics"
	"trade-journal/internal/blob"
	"trade-journal/internal/docstore"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/security"
)

// userSession is a live journal for one signed-in user plus the memoized
// aggregation over its trades.
type userSession struct {
	*journal.Session
	memo   *analytics.Memo
	cancel context.CancelFunc
}

// Aggregation returns the aggregation for the current trade list. It is
// recomputed only when the store version changes.
func (u *userSession) Aggregation() analytics.Aggregation {
	return u.memo.Get(u.Store.Version(), u.Store.Details)
}

// SessionManager starts one journal session per user on first use and keeps
// it subscribed until the user signs out or the server stops.
type SessionManager struct {
	docs      docstore.DocumentStore
	blobs     blob.ObjectStore
	validator *security.TradeValidator
	engine    *analytics.Engine
	pub       journal.Publisher
	metrics   *metrics.Metrics
	access    *security.AccessController
	audit     *security.AuditLogger
	timeout   time.Duration
	log       zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	sessions map[string]*userSession
}

// NewSessionManager creates a manager. timeout bounds the wait for a new
// session's first snapshot.
func NewSessionManager(docs docstore.DocumentStore, blobs blob.ObjectStore, engine *analytics.Engine, timeout time.Duration, logger zerolog.Logger) *SessionManager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SessionManager{
		docs:      docs,
		blobs:     blobs,
		validator: security.NewTradeValidator(engine.Location()),
		engine:    engine,
		timeout:   timeout,
		log:       logging.WithComponent(logger, "sessions"),
		sessions:  make(map[string]*userSession),
	}
}

// SetPublisher routes every session's events to pub.
func (m *SessionManager) SetPublisher(pub journal.Publisher) {
	m.pub = pub
}

// SetMetrics instruments every session.
func (m *SessionManager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// SetGuard applies the read-only gate and audit trail to every session.
func (m *SessionManager) SetGuard(access *security.AccessController, audit *security.AuditLogger) {
	m.access = access
	m.audit = audit
}

// Get returns the user's session, opening it if needed. Concurrent first
// requests for the same user share one open.
func (m *SessionManager) Get(ctx context.Context, uid string) (*userSession, error) {
	m.mu.Lock()
	s, ok := m.sessions[uid]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	// The open is shared, so it must not end with any one caller's request.
	// Each caller still stops waiting when its own ctx ends.
	ch := m.group.DoChan(uid, func() (interface{}, error) {
		m.mu.Lock()
		s, ok := m.sessions[uid]
		m.mu.Unlock()
		if ok {
			return s, nil
		}

		s, err := m.open(uid)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[uid] = s
		m.mu.Unlock()
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*userSession), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *SessionManager) open(uid string) (*userSession, error) {
	sess := journal.NewSession(m.docs, m.blobs, m.validator, m.log)
	if m.pub != nil {
		sess.SetPublisher(m.pub)
	}
	sess.SetMetrics(m.metrics)
	sess.SetGuard(m.access, m.audit)

	// The subscription outlives the request that opened it
	subCtx, cancel := context.WithCancel(context.Background())
	if err := sess.Sync.Start(subCtx, uid); err != nil {
		cancel()
		return nil, err
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), m.timeout)
	defer waitCancel()
	if err := sess.Sync.WaitReady(waitCtx); err != nil {
		sess.Close()
		cancel()
		return nil, err
	}

	log := logging.WithUser(m.log, uid)
	log.Info().Int("trades", sess.Store.State().Count).Msg("Journal session opened")
	return &userSession{Session: sess, memo: analytics.NewMemo(m.engine), cancel: cancel}, nil
}

// Close stops the user's session if one is open.
func (m *SessionManager) Close(uid string) {
	m.mu.Lock()
	s, ok := m.sessions[uid]
	delete(m.sessions, uid)
	m.mu.Unlock()

	if ok {
		s.Close()
		s.cancel()
		log := logging.WithUser(m.log, uid)
		log.Info().Msg("Journal session closed")
	}
}

// CloseAll stops every open session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*userSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		s.cancel()
	}
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
