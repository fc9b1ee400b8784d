package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/docstore"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
)

// SyncController keeps a TradeStore in sync with one user's trades
// collection. It holds at most one live subscription; starting a new one
// cancels the previous one first.
type SyncController struct {
	docs    docstore.DocumentStore
	store   *TradeStore
	pub     Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger

	// startMu serializes Start and Stop. mu guards the fields below and is
	// the only lock taken by subscription callbacks.
	startMu sync.Mutex
	mu      sync.Mutex
	unsub   docstore.Unsubscribe
	uid     string
	gen     uint64
	ready   chan struct{}
	isReady bool
}

// NewSyncController creates a controller that writes into store.
func NewSyncController(docs docstore.DocumentStore, store *TradeStore, logger zerolog.Logger) *SyncController {
	return &SyncController{
		docs:  docs,
		store: store,
		log:   logging.WithComponent(logger, "sync"),
	}
}

// SetPublisher sets the receiver of store change events.
func (c *SyncController) SetPublisher(pub Publisher) {
	c.mu.Lock()
	c.pub = pub
	c.mu.Unlock()
}

// SetMetrics sets the metrics sink.
func (c *SyncController) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

// Start subscribes to the user's trades. Any active subscription is
// cancelled before the new one is opened. ctx bounds the lifetime of the
// subscription, not just the call.
func (c *SyncController) Start(ctx context.Context, userID string) error {
	if userID == "" {
		c.store.rejected(jerrors.ErrNotAuthenticated.Error())
		c.mu.Lock()
		c.publishLocked("")
		c.mu.Unlock()
		return jerrors.ErrNotAuthenticated
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.uid = userID
	c.ready = make(chan struct{})
	c.isReady = false
	c.store.pending()
	c.publishLocked(userID)
	c.mu.Unlock()

	collection := docstore.TradesCollection(userID)
	unsub, err := c.docs.Subscribe(ctx, collection,
		func(snap docstore.Snapshot) { c.onSnapshot(gen, snap) },
		func(err error) { c.onError(gen, err) },
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		rerr := jerrors.NewRemoteReadError(collection, err)
		if gen == c.gen {
			c.store.rejected(rerr.Error())
			c.markReadyLocked()
			c.publishLocked(userID)
		}
		log := logging.WithUser(c.log, userID)
		log.Error().Err(err).Msg("Failed to subscribe to trades")
		return rerr
	}

	if gen != c.gen {
		// onError already ran for this subscription.
		unsub()
		return nil
	}

	c.unsub = unsub
	c.metrics.SubscriptionOpened()
	log := logging.WithUser(c.log, userID)
	log.Info().Str("collection", collection).Msg("Subscribed to trades")
	return nil
}

// Stop cancels the active subscription, if any. Snapshots that arrive
// afterwards are dropped. Safe to call repeatedly.
func (c *SyncController) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.uid = ""
}

func (c *SyncController) stopLocked() {
	c.gen++
	if c.unsub == nil {
		return
	}
	c.unsub()
	c.unsub = nil
	c.metrics.SubscriptionClosed()
	log := logging.WithUser(c.log, c.uid)
	log.Debug().Msg("Unsubscribed from trades")
}

// Active reports whether a subscription is open.
func (c *SyncController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsub != nil
}

// UserID returns the user the controller was last started for, or "" after Stop.
func (c *SyncController) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Store returns the store the controller writes into.
func (c *SyncController) Store() *TradeStore {
	return c.store
}

// WaitReady blocks until the current subscription delivers its first
// snapshot or fails.
func (c *SyncController) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	if ready == nil {
		return jerrors.ErrNotAuthenticated
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for first snapshot: %v", jerrors.ErrTimeout, ctx.Err())
	}

	if st := c.store.State(); st.Status == StatusFailed {
		return fmt.Errorf("%s", st.Error)
	}
	return nil
}

func (c *SyncController) onSnapshot(gen uint64, snap docstore.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.metrics.Snapshot(len(snap.Documents), false)
		return
	}

	trades := make([]models.Trade, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		t, err := decodeTrade(doc)
		if err != nil {
			c.log.Warn().Err(err).Str("trade_id", doc.ID).Msg("Skipping undecodable trade document")
			continue
		}
		trades = append(trades, t)
	}

	version := c.store.replace(trades)
	c.metrics.Snapshot(len(trades), true)
	logging.LogSnapshot(logging.WithUser(c.log, c.uid), snap.Collection, len(trades), version)

	c.markReadyLocked()
	c.publishLocked(c.uid)
}

func (c *SyncController) onError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	rerr := jerrors.NewRemoteReadError(docstore.TradesCollection(c.uid), err)
	c.store.rejected(rerr.Error())
	c.metrics.SubscriptionFailed()
	log := logging.WithUser(c.log, c.uid)
	log.Error().Err(err).Msg("Trade subscription failed")

	// The document store ends a subscription after an error.
	if c.unsub != nil {
		c.unsub = nil
		c.metrics.SubscriptionClosed()
	}
	c.gen++

	c.markReadyLocked()
	c.publishLocked(c.uid)
}

func (c *SyncController) markReadyLocked() {
	if c.ready != nil && !c.isReady {
		close(c.ready)
		c.isReady = true
	}
}

func (c *SyncController) publishLocked(uid string) {
	if c.pub == nil {
		return
	}
	st := c.store.State()
	c.pub.Publish(Event{
		UserID:  uid,
		Version: st.Version,
		Status:  st.Status,
		Error:   st.Error,
		Count:   st.Count,
		At:      time.Now(),
	})
}

// decodeTrade maps a document to a Trade. The document id wins over any
// id stored in the body.
func decodeTrade(doc docstore.Document) (models.Trade, error) {
	var t models.Trade
	if err := docstore.Decode(doc.Body, &t); err != nil {
		return models.Trade{}, err
	}
	if t.Images == nil {
		t.Images = []models.Image{}
	}
	if t.Analysis.Mistakes == nil {
		t.Analysis.Mistakes = []string{}
	}
	return t.WithID(doc.ID), nil
}
