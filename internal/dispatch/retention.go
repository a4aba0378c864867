package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

// RetentionConfig bounds how long finished data is kept.
type RetentionConfig struct {
	RecordDays int
	EventDays  int
	Interval   time.Duration
}

// Retention periodically deletes engagement records and events past their
// retention window. Events still referenced by an unfinished plan are kept
// regardless of age.
type Retention struct {
	cfg     RetentionConfig
	records repository.RecordRepository
	events  repository.EventRepository
	log     logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRetention creates the retention worker.
func NewRetention(cfg RetentionConfig, records repository.RecordRepository, events repository.EventRepository, log logger.Logger) *Retention {
	return &Retention{
		cfg:     cfg,
		records: records,
		events:  events,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the cleanup loop. One pass runs immediately so restarts do
// not postpone overdue cleanup by a full interval.
func (r *Retention) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sweep(ctx)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Retention) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

func (r *Retention) sweep(ctx context.Context) {
	now := time.Now()

	if r.cfg.RecordDays > 0 {
		cutoff := now.AddDate(0, 0, -r.cfg.RecordDays)
		deleted, err := r.records.DeleteRecordsBefore(ctx, cutoff)
		if err != nil {
			r.log.Error("failed to clean up engagement records", logger.Error(err))
		} else if deleted > 0 {
			r.log.Info("cleaned up engagement records",
				logger.Int64("deleted", deleted),
				logger.Time("cutoff", cutoff))
		}
	}

	if r.cfg.EventDays > 0 {
		cutoff := now.AddDate(0, 0, -r.cfg.EventDays)
		deleted, err := r.events.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			r.log.Error("failed to clean up events", logger.Error(err))
		} else if deleted > 0 {
			r.log.Info("cleaned up events",
				logger.Int64("deleted", deleted),
				logger.Time("cutoff", cutoff))
		}
	}
}
