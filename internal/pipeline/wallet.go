package pipeline

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
)

// ProcessWallet drains the pending decoded calls of a single wallet through
// the replay coordinator, looping until the queue for that wallet is empty.
//
// Before draining it counts pending calls that sit before the wallet's latest
// applied call in chain order. Such calls arrived after their position was
// already replayed past, so applying them now can only converge if the
// wallet's snapshots are rebuilt. The count is logged as a warning and the
// drain proceeds.
//
// Parameters:
//   - ctx: context for cancellation
//   - wallet: address whose pending calls should be replayed
//
// Returns:
//   - error: nil when the wallet's queue is empty, otherwise the first queue
//     read or batch replay failure
func (s *service) ProcessWallet(ctx context.Context, wallet common.Address) error {
	stale, err := s.source.StalePendingCalls(ctx, wallet)
	if err != nil {
		return err
	}

	if stale > 0 {
		logger.Warn(ctx, "pending calls predate the wallet's applied state",
			"wallet", wallet.Hex(),
			"count", stale,
		)
	}

	for {
		calls, err := s.source.PendingCallsForWallet(ctx, wallet)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			return nil
		}

		if _, err := s.processor.ProcessBatch(ctx, calls); err != nil {
			return err
		}
	}
}
