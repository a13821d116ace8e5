package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
)

// processPendingCalls is the polling loop. Each round reads one batch of
// pending decoded calls and hands it to the processor. A full or partial
// batch is followed by an immediate re-poll, an empty queue by a ticker wait.
//
// Failures split two ways. Read errors on the queue are treated as transient,
// logged and retried on the next tick. A batch replay error means wallet
// state can no longer advance without skipping calls, so the loop logs and
// stops instead of spinning on the same batch.
func (s *service) processPendingCalls(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		calls, err := s.source.PendingCalls(ctx, s.batchSize)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			logger.Error(ctx, "error reading the pending call queue", "error", err)
		case len(calls) > 0:
			if _, err := s.processor.ProcessBatch(ctx, calls); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				logger.Error(ctx, "batch replay failed, stopping the pipeline", "error", err)
				return
			}

			// More calls may be waiting behind the batch size cap.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startProcessPendingCalls launches the polling loop in a separate goroutine
// and returns a channel that is closed once the loop has fully stopped.
//
// This function should be called once during startup.
func (s *service) startProcessPendingCalls(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.processPendingCalls(ctx)
	}()

	return stopped
}
