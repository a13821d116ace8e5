package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// StoreExecution implements the txproc.TransactionStorage interface for mined
// multisig transactions, keyed by their EIP-712 digest.
//
// The first sighting of a digest creates the row. A row that exists as a
// proposal (empty executing transaction) gets its execution details filled
// in exactly once; a row that already executed is left untouched, so replays
// cannot rewrite history.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - tx: the executed transaction with its canonical fields and outcome.
//
// Returns:
//   - An error if the lookup or the write fails.
func (c *client) StoreExecution(ctx context.Context, tx txproc.MultisigTransaction) error {
	model := executionToModel(tx)

	var existing multisigTransaction
	err := c.db.WithContext(ctx).First(&existing, "hash = ?", model.Hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.db.WithContext(ctx).Create(&model).Error
	}
	if err != nil {
		return err
	}

	if existing.ExecTxHash != "" {
		return nil
	}

	return c.db.WithContext(ctx).
		Model(&multisigTransaction{}).
		Where("hash = ?", model.Hash).
		Updates(map[string]any{
			"exec_tx_hash": model.ExecTxHash,
			"failed":       model.Failed,
			"signatures":   model.Signatures,
			"trusted":      model.Trusted,
		}).Error
}

// DeleteQueuedTransactions implements the queue invalidation of the
// txproc.TransactionStorage interface.
//
// It removes the wallet's unexecuted transactions whose nonce lies above the
// highest executed nonce, the ones whose digests a master copy change just
// invalidated. A wallet with no executed transaction yet loses its whole
// queue.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - wallet: address of the wallet whose queue is invalidated.
//
// Returns:
//   - The number of removed transactions.
//   - An error if the delete fails.
func (c *client) DeleteQueuedTransactions(ctx context.Context, wallet common.Address) (int64, error) {
	highestExecuted := c.db.Model(&multisigTransaction{}).
		Select("COALESCE(MAX(nonce), -1)").
		Where("wallet = ? AND exec_tx_hash <> ''", wallet.Hex())

	result := c.db.WithContext(ctx).
		Where("wallet = ? AND exec_tx_hash = '' AND nonce > (?)", wallet.Hex(), highestExecuted).
		Delete(&multisigTransaction{})

	return result.RowsAffected, result.Error
}

// StoreModuleTransaction records a module-initiated execution. The decoded
// call identity is the primary key, so replays are no-ops.
func (c *client) StoreModuleTransaction(ctx context.Context, tx txproc.ModuleTransaction) error {
	model := moduleTransactionToModel(tx)

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

// MarkRelevant links a chain transaction to a wallet's activity feed.
// Idempotent per (wallet, hash) pair.
func (c *client) MarkRelevant(ctx context.Context, wallet common.Address, txHash common.Hash, at time.Time) error {
	model := relevantTransaction{
		Wallet:    wallet.Hex(),
		TxHash:    txHash.Hex(),
		Timestamp: at,
	}

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}
