package txproc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
	"github.com/gabapcia/safewatch/internal/pkg/types"
)

// Process applies a single decoded call inside its own unit of work, with
// the same banned-wallet filtering, cache hygiene and processed marking as a
// batch of one.
func (s *service) Process(ctx context.Context, call DecodedCall) (bool, error) {
	results, err := s.ProcessBatch(ctx, []DecodedCall{call})
	if err != nil {
		return false, err
	}

	return results[0], nil
}

// ProcessBatch replays an ordered collection of decoded calls as one unit of
// work.
//
// Calls from banned wallets never reach the processor and report false. Each
// remaining call runs in its own savepoint, so a per-call failure rolls back
// only that call's writes: invariant violations are logged and absorbed as a
// false outcome, while a data consistency failure or a storage fault aborts
// and rolls back the whole batch. On success every input call, banned ones
// included, is marked processed in one bulk update inside the same unit of
// work. The state memo of every touched wallet is dropped before and after
// the run, whatever the outcome.
func (s *service) ProcessBatch(ctx context.Context, calls []DecodedCall) ([]bool, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	wallets := walletsOf(calls)
	s.cache.invalidate(wallets...)
	defer s.cache.invalidate(wallets...)

	bannedWallets, err := s.denylist.FilterBanned(ctx, wallets)
	if err != nil {
		return nil, err
	}
	banned := types.NewSet(bannedWallets...)

	results := make([]bool, len(calls))
	err = s.storage.Transact(ctx, func(store Storage) error {
		for i, call := range calls {
			if banned.Contains(call.From) {
				logger.Info(ctx, "skipping call from banned wallet",
					"wallet", call.From,
					"call.id", call.ID,
				)
				continue
			}

			applied, err := s.processInSavepoint(ctx, store, call)
			if err != nil {
				return err
			}

			results[i] = applied
		}

		return store.MarkProcessed(ctx, callIDs(calls))
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// processInSavepoint applies one call in a nested unit of work and absorbs
// its invariant violations, so a bad call cannot take down the calls around
// it. Anything else bubbles up and aborts the batch.
func (s *service) processInSavepoint(ctx context.Context, store Storage, call DecodedCall) (bool, error) {
	var applied bool
	err := store.Transact(ctx, func(txStore Storage) error {
		ok, err := s.apply(ctx, txStore, call)
		applied = ok
		return err
	})
	if err == nil {
		return applied, nil
	}

	// The rolled back savepoint may have left a stale memo behind.
	s.cache.invalidate(call.From)

	switch {
	case errors.Is(err, ErrOwnerNotFound) || errors.Is(err, ErrModuleNotFound):
		logger.Error(ctx, "call violates wallet state",
			"wallet", call.From,
			"call.id", call.ID,
			"function", call.Function,
			"error", err,
		)
		return false, nil
	case errors.Is(err, ErrMissingArgument) || errors.Is(err, ErrInvalidArgument):
		logger.Error(ctx, "call arguments cannot be interpreted",
			"wallet", call.From,
			"call.id", call.ID,
			"function", call.Function,
			"error", err,
		)
		return false, nil
	}

	return false, err
}

func walletsOf(calls []DecodedCall) []common.Address {
	set := types.NewSet[common.Address]()
	for _, call := range calls {
		set.Add(call.From)
	}

	return set.ToSlice()
}

func callIDs(calls []DecodedCall) []uint64 {
	ids := make([]uint64, len(calls))
	for i, call := range calls {
		ids[i] = call.ID
	}

	return ids
}
