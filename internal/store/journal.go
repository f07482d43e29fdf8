package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/models"
	"optionstream/internal/performance"
)

// Journal batches chain summaries into the snapshot store so a busy
// broadcast tick does one insert transaction instead of one per symbol.
type Journal struct {
	store Store
	batch *performance.BatchProcessor[models.Summary]
	log   zerolog.Logger
}

// NewJournal creates a journal writing to store. batchSize summaries
// trigger an immediate flush.
func NewJournal(store Store, batchSize int, log zerolog.Logger) *Journal {
	j := &Journal{
		store: store,
		log:   log.With().Str("component", "journal").Logger(),
	}
	j.batch = performance.NewBatchProcessor(batchSize, func(items []models.Summary) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return j.store.SaveSnapshots(ctx, items)
	})
	return j
}

// Record queues a view's summary for persistence.
func (j *Journal) Record(view *models.OptionChainView) {
	if err := j.batch.Add(view.Summarize()); err != nil {
		j.log.Error().Err(err).Str("symbol", view.Symbol).Msg("journal write failed")
	}
}

// Flush persists any buffered summaries.
func (j *Journal) Flush() {
	if err := j.batch.Flush(); err != nil {
		j.log.Error().Err(err).Msg("journal flush failed")
	}
}

// Run flushes on an interval until ctx is cancelled, then does a final
// flush.
func (j *Journal) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.Flush()
			return
		case <-ticker.C:
			j.Flush()
		}
	}
}
