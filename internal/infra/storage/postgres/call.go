package postgres

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// pendingOrder puts wallet setups ahead of everything else, then follows
// chain order. A setup observed late must still run before the calls that
// assume the wallet exists.
const pendingOrder = "CASE WHEN function_name = 'setup' THEN 0 ELSE 1 END, block_number, tx_index, id"

// PendingCalls implements the txproc.CallStorage interface over the decoded
// call table the upstream decoder fills.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - limit: maximum number of calls to return, zero meaning no limit.
//
// Returns:
//   - The unprocessed decoded calls in processing order.
//   - An error if the query fails or a stored call cannot be decoded.
func (c *client) PendingCalls(ctx context.Context, limit int) ([]txproc.DecodedCall, error) {
	query := c.db.WithContext(ctx).
		Where("processed = ?", false).
		Order(pendingOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []decodedCall
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	return callsFromModels(models)
}

// PendingCallsForWallet is PendingCalls narrowed to one wallet's calls.
func (c *client) PendingCallsForWallet(ctx context.Context, wallet common.Address) ([]txproc.DecodedCall, error) {
	var models []decodedCall
	err := c.db.WithContext(ctx).
		Where("processed = ? AND wallet = ?", false, wallet.Hex()).
		Order(pendingOrder).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return callsFromModels(models)
}

// MarkProcessed flips the processed flag of the given calls in one bulk
// update.
func (c *client) MarkProcessed(ctx context.Context, callIDs []uint64) error {
	if len(callIDs) == 0 {
		return nil
	}

	return c.db.WithContext(ctx).
		Model(&decodedCall{}).
		Where("id IN ?", callIDs).
		Update("processed", true).Error
}

// StalePendingCalls counts the wallet's pending calls that sit before the
// chain position of its last applied configuration. A non-zero count means
// the upstream decoder refilled history behind the processor: those calls
// replay idempotently but cannot unwind state built after them, so operators
// may want a wallet reindex instead.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - wallet: address of the wallet to inspect.
//
// Returns:
//   - How many pending calls predate the wallet's current configuration,
//     zero when the wallet has no configuration yet.
//   - An error if the query fails.
func (c *client) StalePendingCalls(ctx context.Context, wallet common.Address) (int64, error) {
	var latest walletStatusLatest
	err := c.db.WithContext(ctx).First(&latest, "wallet = ?", wallet.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int64
	err = c.db.WithContext(ctx).
		Model(&decodedCall{}).
		Where("wallet = ? AND processed = ?", wallet.Hex(), false).
		Where(
			"block_number < ? OR (block_number = ? AND tx_index < ?) OR (block_number = ? AND tx_index = ? AND id < ?)",
			latest.BlockNumber, latest.BlockNumber, latest.TxIndex, latest.BlockNumber, latest.TxIndex, latest.CallID,
		).
		Count(&count).Error

	return count, err
}

func callsFromModels(models []decodedCall) ([]txproc.DecodedCall, error) {
	calls := make([]txproc.DecodedCall, len(models))
	for i, model := range models {
		call, err := callFromModel(model)
		if err != nil {
			return nil, err
		}

		calls[i] = call
	}

	return calls, nil
}
