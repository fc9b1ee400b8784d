// Package docstore provides the document database the journal syncs against.
//
// The model follows a hosted document database: documents live in
// slash-separated collections, are written individually or in atomic batches,
// and are read through live subscriptions that deliver the full result set on
// every change.
package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Document is a stored document. Body is msgpack-encoded.
type Document struct {
	ID        string
	Body      []byte
	UpdatedAt time.Time
}

// Snapshot is the full content of a collection at one point in time.
type Snapshot struct {
	Collection string
	Documents  []Document
	ReadAt     time.Time
}

// Unsubscribe cancels a live subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// DocumentStore defines the interface for the remote document database.
type DocumentStore interface {
	// Subscribe delivers an initial snapshot of the collection and a new one
	// after every committed write to it. onError is called at most once; the
	// subscription is dead afterwards.
	Subscribe(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)

	// BatchSet creates or overwrites all docs atomically.
	BatchSet(ctx context.Context, collection string, docs []Document) error

	// Update replaces the body of an existing document.
	// Returns errors.ErrDocumentNotFound if it does not exist.
	Update(ctx context.Context, collection, id string, body []byte) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Get reads a single document.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Close releases the store and cancels all subscriptions.
	Close() error
}

// TradesCollection returns the collection path holding a user's trades.
func TradesCollection(uid string) string {
	return fmt.Sprintf("users/%s/trades", uid)
}

// ValidCollection reports whether a collection path has an odd number of
// non-empty segments (collection/doc/collection...).
func ValidCollection(collection string) bool {
	if collection == "" {
		return false
	}
	parts := strings.Split(collection, "/")
	if len(parts)%2 == 0 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Encode serializes a value into a document body.
func Encode(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return b, nil
}

// Decode deserializes a document body into v.
func Decode(body []byte, v interface{}) error {
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}
