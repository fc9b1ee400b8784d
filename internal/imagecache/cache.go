// Package imagecache keeps local copies of chart images so that views do
// not refetch them from object storage on every render.
package imagecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"trade-journal/internal/blob"
	"trade-journal/internal/metrics"
)

// MaxImageSize bounds a single cached image.
const MaxImageSize = 20 << 20

// ErrTooLarge is returned when an image exceeds MaxImageSize.
var ErrTooLarge = errors.New("image exceeds cache size limit")

// Entry is a cached image.
type Entry struct {
	URL         string
	Data        []byte
	ContentType string
	FetchedAt   time.Time
}

// Cache is a SQLite-backed read-through cache in front of an ObjectStore.
type Cache struct {
	db      *sql.DB
	blobs   blob.ObjectStore
	maxAge  time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
	now     func() time.Time
}

// New opens (or creates) the cache database at dbPath. A maxAge of zero
// disables expiry.
func New(dbPath string, blobs blob.ObjectStore, maxAge time.Duration, logger zerolog.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	c := &Cache{
		db:     db,
		blobs:  blobs,
		maxAge: maxAge,
		log:    logger.With().Str("component", "imagecache").Logger(),
		now:    time.Now,
	}

	schema := `
	CREATE TABLE IF NOT EXISTS image_cache (
		url TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		content_type TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_image_cache_fetched ON image_cache(fetched_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

// SetMetrics attaches collectors for hit/miss/eviction counts.
func (c *Cache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetch returns the image at url, downloading and storing it on a miss or
// when the cached copy is older than maxAge. Concurrent fetches of the same
// url share one download.
func (c *Cache) Fetch(ctx context.Context, url string) (Entry, error) {
	e, err := c.lookup(ctx, url)
	if err == nil && !c.expired(e) {
		c.metrics.Cache("hit", 1)
		return e, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, err
	}

	c.metrics.Cache("miss", 1)
	v, err, _ := c.group.Do(url, func() (interface{}, error) {
		return c.download(ctx, url)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Evict removes one url from the cache.
func (c *Cache) Evict(ctx context.Context, url string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM image_cache WHERE url = ?`, url); err != nil {
		return fmt.Errorf("failed to evict %s: %w", url, err)
	}
	return nil
}

// Purge removes every entry fetched more than maxAge ago and returns how
// many were removed. It does nothing when expiry is disabled.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c.maxAge <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.maxAge).UTC()
	res, err := c.db.ExecContext(ctx, `DELETE FROM image_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	c.metrics.Cache("evicted", int(n))
	return n, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_cache`).Scan(&n)
	return n, err
}

func (c *Cache) expired(e Entry) bool {
	return c.maxAge > 0 && c.now().Sub(e.FetchedAt) > c.maxAge
}

func (c *Cache) lookup(ctx context.Context, url string) (Entry, error) {
	e := Entry{URL: url}
	err := c.db.QueryRowContext(ctx,
		`SELECT data, content_type, fetched_at FROM image_cache WHERE url = ?`, url,
	).Scan(&e.Data, &e.ContentType, &e.FetchedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (c *Cache) download(ctx context.Context, url string) (Entry, error) {
	rc, err := c.blobs.Open(ctx, url)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxImageSize+1))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > MaxImageSize {
		return Entry{}, ErrTooLarge
	}

	e := Entry{
		URL:         url,
		Data:        data,
		ContentType: http.DetectContentType(data),
		FetchedAt:   c.now().UTC(),
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO image_cache (url, data, content_type, fetched_at)
		VALUES (?, ?, ?, ?)
	`, e.URL, e.Data, e.ContentType, e.FetchedAt)
	if err != nil {
		// The image is still usable; only the cache write failed
		c.log.Warn().Err(err).Str("url", url).Msg("Failed to store cached image")
	}

	c.log.Debug().Str("url", url).Int("bytes", len(data)).Msg("Image cached")
	return e, nil
}
