package sync

// retry.go
// Background goroutine that periodically re-attempts outbox pushes stuck in
// status='pending' with a next_attempt_at in the past. Uses the circuit
// breaker to avoid hammering an unreachable remote store.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

const retryBatchSize = 10

// retryBackoff grows exponentially with the attempt count, capped at ten
// minutes: 1m, 2m, 4m, 8m, 10m, 10m...
func retryBackoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts && d < 10*time.Minute; i++ {
		d *= 2
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

// StartRetryLoop launches a goroutine that ticks on the configured retry
// interval and re-pushes due outbox rows through the circuit breaker. Rows
// that exhaust their attempts are parked as failed and copied to the dead
// letter queue for inspection. It respects the context for graceful shutdown.
//
// Before the loop starts, rows left in-flight by a previous crash are swept
// back to pending so they re-enter the normal push path.
func (e *Engine) StartRetryLoop(ctx context.Context, rdb *redis.Client) {
	if n, err := e.changes.RequeueInflight(ctx); err != nil {
		log.Error().Err(err).Msg("sync_retry: requeue in-flight changes")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("sync_retry: requeued in-flight changes from previous run")
	}

	go func() {
		ticker := time.NewTicker(e.retryTick)
		defer ticker.Stop()

		log.Info().Msg("sync_retry: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sync_retry: shutting down")
				return
			case <-ticker.C:
				e.processRetries(ctx, rdb)
			}
		}
	}()
}

func (e *Engine) processRetries(ctx context.Context, rdb *redis.Client) {
	// If CB is open, skip the tick entirely.
	if e.cb.State() == infra.CBOpen {
		log.Debug().Msg("sync_retry: circuit breaker is open, skipping tick")
		return
	}

	due, err := e.changes.ListDueRetries(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("sync_retry: failed to query due changes")
		return
	}
	if len(due) == 0 {
		return
	}

	log.Info().Int("count", len(due)).Msg("sync_retry: processing due changes")

	// Tell connected renderers there is work to sync, so the UI can surface
	// the unsynced badge without polling the status endpoint.
	e.hub.Publish(Event{
		Type:    EventUnsyncedData,
		Payload: map[string]any{"count": len(due)},
	})

	anySynced := false
	for i := range due {
		change := &due[i]

		// The breaker may have tripped mid-batch.
		if e.cb.State() == infra.CBOpen {
			log.Debug().Msg("sync_retry: circuit breaker opened mid-batch, stopping")
			break
		}

		err := e.uploadChange(ctx, change)
		if err == nil {
			if merr := e.changes.MarkStatus(ctx, change.ID, model.ChangeSynced); merr != nil {
				log.Error().Err(merr).Msg("sync_retry: mark synced")
				continue
			}
			anySynced = true
			log.Info().
				Str("record", change.RecordID.String()).
				Int("total_attempts", change.Attempts).
				Msg("sync_retry: change pushed after retry")
			continue
		}

		if remote.KindOf(err) == remote.KindConflict {
			_ = e.changes.MarkStatus(ctx, change.ID, model.ChangeConflict)
			log.Warn().Str("record", change.RecordID.String()).Msg("sync_retry: push lost to newer remote write")
			continue
		}

		e.scheduleRetry(ctx, change, err)
		if change.Status == model.ChangeFailed && rdb != nil {
			payload, _ := json.Marshal(map[string]string{
				"change_id":  change.ID.String(),
				"collection": change.Collection,
				"record_id":  change.RecordID.String(),
			})
			worker.SendToDLQ(ctx, rdb, worker.QueueSync, "sync_push", payload, err.Error(), change.Attempts)
		}
	}

	if anySynced {
		e.setOnline(true)
	}
}
