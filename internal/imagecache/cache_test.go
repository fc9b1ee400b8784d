package imagecache

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/blob"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/metrics"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestCache(t *testing.T, maxAge time.Duration) (*Cache, *blob.FileStore) {
	t.Helper()
	dir := t.TempDir()

	files, err := blob.NewFileStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	c, err := New(filepath.Join(dir, "cache.db"), files, maxAge, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, files
}

func putImage(t *testing.T, files *blob.FileStore, name string, data []byte) string {
	t.Helper()
	url, err := files.Put(context.Background(), "images/"+name, bytes.NewReader(data), "image/png")
	require.NoError(t, err)
	return url
}

func TestFetchMissThenHit(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	m := metrics.New()
	c.SetMetrics(m)
	ctx := context.Background()

	url := putImage(t, files, "chart.png", pngHeader)

	e, err := c.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, e.Data)
	assert.Equal(t, "image/png", e.ContentType)

	// Served from the cache even after the object is gone
	require.NoError(t, files.Delete(ctx, url))
	e, err = c.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, e.Data)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImageCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImageCache.WithLabelValues("hit")))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFetchMissingObject(t *testing.T) {
	c, files := newTestCache(t, time.Hour)

	_, err := c.Fetch(context.Background(), "file://"+filepath.Join(files.Root(), "images", "nope.png"))
	assert.ErrorIs(t, err, jerrors.ErrObjectNotFound)
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	url := putImage(t, files, "chart.png", []byte("old"))
	_, err := c.Fetch(ctx, url)
	require.NoError(t, err)

	putImage(t, files, "chart.png", []byte("new"))

	e, err := c.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), e.Data)

	now = now.Add(2 * time.Hour)
	e, err = c.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), e.Data)
}

func TestPurgeRemovesOldEntries(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	old := putImage(t, files, "old.png", []byte("a"))
	_, err := c.Fetch(ctx, old)
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	fresh := putImage(t, files, "fresh.png", []byte("b"))
	_, err = c.Fetch(ctx, fresh)
	require.NoError(t, err)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestPurgeDisabledWithoutMaxAge(t *testing.T) {
	c, files := newTestCache(t, 0)
	ctx := context.Background()

	_, err := c.Fetch(ctx, putImage(t, files, "a.png", []byte("a")))
	require.NoError(t, err)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvict(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	ctx := context.Background()

	url := putImage(t, files, "a.png", []byte("a"))
	_, err := c.Fetch(ctx, url)
	require.NoError(t, err)

	require.NoError(t, c.Evict(ctx, url))
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentFetch(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	url := putImage(t, files, "a.png", pngHeader)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.Fetch(context.Background(), url)
			if err == nil && !bytes.Equal(e.Data, pngHeader) {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestJanitor(t *testing.T) {
	c, files := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Fetch(ctx, putImage(t, files, "a.png", []byte("a")))
	require.NoError(t, err)

	_, err = NewJanitor(c, "not a schedule", zerolog.Nop())
	assert.Error(t, err)

	j, err := NewJanitor(c, "@every 1h", zerolog.Nop())
	require.NoError(t, err)
	j.Start()
	defer j.Stop()

	now = now.Add(2 * time.Hour)
	n, err := j.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestJanitorRunsExtraPurges(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	j, err := NewJanitor(c, "@every 1s", zerolog.Nop())
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, j.AddPurge("sessions", func(ctx context.Context) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return 0, nil
	}))

	j.Start()
	defer j.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, 3*time.Second, 50*time.Millisecond)
}
