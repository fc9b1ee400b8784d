package journal

import (
	"context"
	"fmt"
	"sync"

	"trade-journal/internal/docstore"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// fakeDocs is a DocumentStore whose subscriptions are driven by the test.
type fakeDocs struct {
	mu      sync.Mutex
	calls   []string
	subs    []*fakeSub
	docs    map[string]map[string][]byte
	batches [][]docstore.Document

	subscribeErr error
	writeErr     error
}

type fakeSub struct {
	id         int
	collection string
	onSnapshot func(docstore.Snapshot)
	onError    func(error)
	cancelled  bool
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]map[string][]byte{}}
}

func (f *fakeDocs) Subscribe(ctx context.Context, collection string, onSnapshot func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSub{id: len(f.subs) + 1, collection: collection, onSnapshot: onSnapshot, onError: onError}
	f.subs = append(f.subs, sub)
	f.calls = append(f.calls, "subscribe:"+collection)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			sub.cancelled = true
			f.calls = append(f.calls, fmt.Sprintf("unsubscribe:%d", sub.id))
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeDocs) BatchSet(ctx context.Context, collection string, docs []docstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, docs)
	if f.docs[collection] == nil {
		f.docs[collection] = map[string][]byte{}
	}
	for _, d := range docs {
		f.docs[collection][d.ID] = d.Body
	}
	return nil
}

func (f *fakeDocs) Update(ctx context.Context, collection, id string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.docs[collection][id]; !ok {
		return jerrors.ErrDocumentNotFound
	}
	f.docs[collection][id] = body
	return nil
}

func (f *fakeDocs) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.docs[collection], id)
	return nil
}

func (f *fakeDocs) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.docs[collection][id]
	if !ok {
		return docstore.Document{}, jerrors.ErrDocumentNotFound
	}
	return docstore.Document{ID: id, Body: body}, nil
}

func (f *fakeDocs) Close() error { return nil }

func (f *fakeDocs) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeDocs) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDocs) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.cancelled {
			n++
		}
	}
	return n
}

// staticUser is a UserSource with a fixed uid.
type staticUser string

func (u staticUser) UserID() string { return string(u) }

func tradeDoc(id string, d models.TradeDetails) docstore.Document {
	body, err := docstore.Encode(models.NewTrade(d))
	if err != nil {
		panic(err)
	}
	return docstore.Document{ID: id, Body: body}
}

func snapshot(collection string, docs ...docstore.Document) docstore.Snapshot {
	if docs == nil {
		docs = []docstore.Document{}
	}
	return docstore.Snapshot{Collection: collection, Documents: docs}
}

func details(id string, pnl float64) models.TradeDetails {
	return models.TradeDetails{
		TradeID:   id,
		OpenDate:  "2024-03-05T09:30:00",
		CloseDate: "2024-03-05T10:30:00",
		Symbol:    "ES",
		Side:      models.SideBuy,
		Entry:     5100,
		Exit:      5101,
		Qty:       1,
		PnL:       pnl,
		Status:    models.StatusTakeProfit,
	}
}
