package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// resyncBatch caps how many unsent summaries one resync pass uploads.
const resyncBatch = 100

// Resyncer backfills cached summaries that never reached upstream, either
// because the policy withheld them or because a publish failed. Batched
// uploads at a long interval keep the real-time bandwidth savings intact
// while upstream eventually sees every window.
type Resyncer struct {
	cfg       Config
	logger    *zap.Logger
	cache     Cache
	publisher Publisher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewResyncer creates a resync loop; call Start to run it.
func NewResyncer(cfg Config, logger *zap.Logger, cache Cache, publisher Publisher) *Resyncer {
	return &Resyncer{cfg: cfg, logger: logger, cache: cache, publisher: publisher}
}

// Start launches the periodic resync loop. No-op when the interval is
// zero or either collaborator is missing.
func (r *Resyncer) Start(ctx context.Context) {
	if r.cfg.ResyncInterval <= 0 || r.cache == nil || r.publisher == nil {
		r.logger.Info("resync disabled")
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.ResyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := r.RunOnce(ctx); err != nil {
					r.logger.Warn("resync pass incomplete", zap.Int("uploaded", n), zap.Error(err))
				} else if n > 0 {
					r.logger.Info("resync pass complete", zap.Int("uploaded", n))
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (r *Resyncer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// RunOnce uploads one batch of unsent summaries, marking each sent only
// after a successful publish. Stops at the first publish failure so the
// remaining backlog is retried next pass in order.
func (r *Resyncer) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.cache.UnsentSummaries(ctx, resyncBatch)
	if err != nil {
		return 0, fmt.Errorf("loading unsent summaries: %w", err)
	}

	uploaded := 0
	for _, stored := range pending {
		payload, err := json.Marshal(stored.Summary)
		if err != nil {
			r.logger.Error("marshaling cached summary failed",
				zap.Int64("summary_id", stored.ID), zap.Error(err))
			continue
		}

		topic := fmt.Sprintf("%s/sensors/%s/processed", r.cfg.TopicPrefix, stored.Summary.SensorID)
		if err := r.publisher.Publish(ctx, topic, payload, models.PriorityNormal); err != nil {
			return uploaded, fmt.Errorf("publishing summary %d: %w", stored.ID, err)
		}
		if err := r.cache.MarkSummarySent(ctx, stored.ID); err != nil {
			return uploaded, fmt.Errorf("marking summary %d sent: %w", stored.ID, err)
		}
		uploaded++
	}
	return uploaded, nil
}
