package imagecache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor purges expired cache entries on a cron schedule.
type Janitor struct {
	cache    *Cache
	cron     *cron.Cron
	schedule string
	log      zerolog.Logger
	timeout  time.Duration
}

// NewJanitor creates a janitor for cache. Schedules use the six-field
// seconds format or descriptors such as "@every 1h" and "@hourly".
func NewJanitor(cache *Cache, schedule string, logger zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cache:    cache,
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		log:      logger.With().Str("component", "janitor").Logger(),
		timeout:  time.Minute,
	}

	if err := j.AddPurge("image cache", cache.Purge); err != nil {
		return nil, err
	}

	j.log.Info().Str("schedule", schedule).Msg("Cache janitor registered")
	return j, nil
}

// Start starts the schedule.
func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info().Msg("Cache janitor started")
}

// Stop stops the schedule and waits for a running purge to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Info().Msg("Cache janitor stopped")
}

// RunNow purges immediately, outside the schedule.
func (j *Janitor) RunNow(ctx context.Context) (int64, error) {
	return j.cache.Purge(ctx)
}

// AddPurge runs purge on the janitor's schedule. Expired auth sessions are
// swept this way alongside the cache.
func (j *Janitor) AddPurge(name string, purge func(context.Context) (int64, error)) error {
	_, err := j.cron.AddFunc(j.schedule, func() { j.run(name, purge) })
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	return nil
}

func (j *Janitor) run(name string, purge func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := purge(ctx)
	if err != nil {
		j.log.Error().Err(err).Str("target", name).Msg("Purge failed")
		return
	}
	j.log.Debug().Int64("removed", n).Str("target", name).Msg("Purge completed")
}
