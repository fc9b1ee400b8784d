package journal

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/blob"
	"trade-journal/internal/docstore"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// UserSource reports the signed-in user, or "" if there is none.
type UserSource interface {
	UserID() string
}

// Mutator sends trade writes to the document store. It never edits the
// local trade list: the change arrives through the next snapshot.
type Mutator struct {
	docs      docstore.DocumentStore
	blobs     blob.ObjectStore
	store     *TradeStore
	users     UserSource
	validator *security.TradeValidator
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	pub     Publisher
	metrics *metrics.Metrics
	access  *security.AccessController
	audit   *security.AuditLogger
}

// mutationOps maps each mutation to its permission and audit event.
var mutationOps = map[string]struct {
	perm  security.OperationType
	event security.AuditEventType
}{
	"addTrades":   {security.OpAddTrades, security.AuditTradesAdded},
	"updateTrade": {security.OpUpdateTrade, security.AuditTradeUpdated},
	"deleteTrade": {security.OpDeleteTrade, security.AuditTradeDeleted},
	"attachImage": {security.OpAttachImage, security.AuditImageAttached},
	"detachImage": {security.OpDetachImage, security.AuditImageDetached},
}

// NewMutator creates a mutation dispatcher. blobs may be nil if images are
// not used.
func NewMutator(docs docstore.DocumentStore, blobs blob.ObjectStore, store *TradeStore, users UserSource, validator *security.TradeValidator, logger zerolog.Logger) *Mutator {
	if validator == nil {
		validator = security.NewTradeValidator(nil)
	}
	return &Mutator{
		docs:      docs,
		blobs:     blobs,
		store:     store,
		users:     users,
		validator: validator,
		log:       logging.WithComponent(logger, "mutator"),
		now:       time.Now,
	}
}

// SetPublisher sets the receiver of status change events.
func (m *Mutator) SetPublisher(pub Publisher) {
	m.mu.Lock()
	m.pub = pub
	m.mu.Unlock()
}

// SetMetrics sets the metrics sink.
func (m *Mutator) SetMetrics(mt *metrics.Metrics) {
	m.mu.Lock()
	m.metrics = mt
	m.mu.Unlock()
}

// SetGuard sets the read-only gate and the audit trail. Either may be nil.
func (m *Mutator) SetGuard(access *security.AccessController, audit *security.AuditLogger) {
	m.mu.Lock()
	m.access = access
	m.audit = audit
	m.mu.Unlock()
}

// AddTrades writes new trades with empty annotations in one batch. Rows
// without a trade id are skipped. Any invalid row fails the whole batch.
func (m *Mutator) AddTrades(ctx context.Context, details []models.TradeDetails) error {
	return m.run(ctx, "addTrades", "", len(details), func(uid string) error {
		docs := make([]docstore.Document, 0, len(details))
		for _, d := range details {
			if d.TradeID == "" {
				m.log.Warn().Str("symbol", d.Symbol).Msg("Trade has no tradeId, skipping")
				continue
			}
			if err := m.validator.ValidateDetails(d); err != nil {
				return fmt.Errorf("trade %s: %w", d.TradeID, err)
			}
			body, err := docstore.Encode(models.NewTrade(d))
			if err != nil {
				return err
			}
			docs = append(docs, docstore.Document{ID: d.TradeID, Body: body})
		}

		if len(docs) == 0 {
			return nil
		}
		if err := m.docs.BatchSet(ctx, docstore.TradesCollection(uid), docs); err != nil {
			return jerrors.NewRemoteWriteError("addTrades", err)
		}
		return nil
	})
}

// UpdateTrade overwrites an existing trade document.
func (m *Mutator) UpdateTrade(ctx context.Context, trade models.Trade) error {
	return m.run(ctx, "updateTrade", trade.TradeID, 1, func(uid string) error {
		return m.update(ctx, uid, trade)
	})
}

func (m *Mutator) update(ctx context.Context, uid string, trade models.Trade) error {
	if trade.TradeID == "" {
		return jerrors.NewValidationError("tradeId", "", "trade id is required")
	}
	trade = trade.WithID(trade.TradeID)
	if err := m.validator.ValidateDetails(trade.Trade); err != nil {
		return err
	}

	body, err := docstore.Encode(trade)
	if err != nil {
		return err
	}
	if err := m.docs.Update(ctx, docstore.TradesCollection(uid), trade.TradeID, body); err != nil {
		return jerrors.NewRemoteWriteError("updateTrade", err)
	}
	return nil
}

// DeleteTrade removes a trade document.
func (m *Mutator) DeleteTrade(ctx context.Context, tradeID string) error {
	return m.run(ctx, "deleteTrade", tradeID, 1, func(uid string) error {
		if tradeID == "" {
			return jerrors.NewValidationError("tradeId", "", "trade id is required")
		}
		if err := m.docs.Delete(ctx, docstore.TradesCollection(uid), tradeID); err != nil {
			return jerrors.NewRemoteWriteError("deleteTrade", err)
		}
		return nil
	})
}

// AttachImage uploads a chart image and appends it to the trade. The upload
// and the trade update are not atomic: a failed update leaves an orphaned
// object behind.
func (m *Mutator) AttachImage(ctx context.Context, tradeID, filename string, r io.Reader, contentType, timeframe, description string) (models.Image, error) {
	var img models.Image
	err := m.run(ctx, "attachImage", tradeID, 1, func(uid string) error {
		if m.blobs == nil {
			return fmt.Errorf("image storage is not configured")
		}
		trade, err := m.get(ctx, uid, tradeID)
		if err != nil {
			return err
		}

		key := blob.ImageKey(m.now(), filename)
		url, err := m.blobs.Put(ctx, key, r, contentType)
		if err != nil {
			return jerrors.NewRemoteWriteError("uploadImage", err)
		}

		img = models.Image{
			URL:         url,
			Timeframe:   timeframe,
			Description: security.SanitizeText(description),
		}
		trade.Images = append(trade.Images, img)
		return m.update(ctx, uid, trade)
	})
	return img, err
}

// DetachImage removes an image from the trade, then deletes the object.
// A failed object delete is logged and otherwise ignored.
func (m *Mutator) DetachImage(ctx context.Context, tradeID, url string) error {
	return m.run(ctx, "detachImage", tradeID, 1, func(uid string) error {
		trade, err := m.get(ctx, uid, tradeID)
		if err != nil {
			return err
		}

		kept := make([]models.Image, 0, len(trade.Images))
		for _, img := range trade.Images {
			if img.URL != url {
				kept = append(kept, img)
			}
		}
		if len(kept) == len(trade.Images) {
			return jerrors.NewValidationError("url", url, "image is not attached to trade "+tradeID)
		}
		trade.Images = kept

		if err := m.update(ctx, uid, trade); err != nil {
			return err
		}

		if m.blobs != nil {
			if err := m.blobs.Delete(ctx, url); err != nil {
				log := logging.WithTradeID(m.log, tradeID)
				log.Warn().Err(err).Str("url", url).Msg("Failed to delete image object")
			}
		}
		return nil
	})
}

// get reads the current remote version of a trade.
func (m *Mutator) get(ctx context.Context, uid, tradeID string) (models.Trade, error) {
	if tradeID == "" {
		return models.Trade{}, jerrors.NewValidationError("tradeId", "", "trade id is required")
	}
	collection := docstore.TradesCollection(uid)
	doc, err := m.docs.Get(ctx, collection, tradeID)
	if err != nil {
		return models.Trade{}, jerrors.NewRemoteReadError(collection, err)
	}
	return decodeTrade(doc)
}

// run wraps a mutation in the pending/fulfilled/rejected lifecycle. The
// error is returned to the caller and recorded on the store.
func (m *Mutator) run(ctx context.Context, op, tradeID string, count int, fn func(uid string) error) error {
	m.mu.RLock()
	pub, mt, access, audit := m.pub, m.metrics, m.access, m.audit
	m.mu.RUnlock()

	uid := m.users.UserID()
	if uid == "" {
		err := jerrors.ErrNotAuthenticated
		m.store.rejected(err.Error())
		mt.Mutation(op, err)
		return err
	}

	info := mutationOps[op]
	if err := access.CheckPermission(ctx, uid, info.perm); err != nil {
		m.store.rejected(err.Error())
		mt.Mutation(op, err)
		return err
	}

	m.store.pending()
	err := fn(uid)
	if err != nil {
		m.store.rejected(err.Error())
	} else {
		m.store.fulfilled()
	}

	mt.Mutation(op, err)
	logging.LogMutation(logging.WithUser(m.log, uid), op, count, err)
	if aerr := audit.LogMutation(ctx, info.event, uid, tradeID, count, err); aerr != nil {
		m.log.Warn().Err(aerr).Msg("Failed to write audit event")
	}

	if pub != nil {
		st := m.store.State()
		pub.Publish(Event{
			UserID:  uid,
			Version: st.Version,
			Status:  st.Status,
			Error:   st.Error,
			Count:   st.Count,
			At:      m.now(),
		})
	}
	return err
}
