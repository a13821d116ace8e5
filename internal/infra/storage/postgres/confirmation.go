package postgres

import (
	"bytes"
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// StoreConfirmation implements the signature side of the
// txproc.ConfirmationStorage interface.
//
// The (digest, owner) pair is created when missing. When the pair exists with
// a different stored signature, the signature and its kind are replaced: the
// blob recovered from the executed transaction is the one that actually
// counted on chain.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - conf: the confirmation recovered from an execution's signature blob.
//
// Returns:
//   - An error if the lookup or the write fails.
func (c *client) StoreConfirmation(ctx context.Context, conf txproc.Confirmation) error {
	model := confirmationToModel(conf)

	var existing confirmation
	err := c.db.WithContext(ctx).
		First(&existing, "transaction_hash = ? AND owner = ?", model.TransactionHash, model.Owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.db.WithContext(ctx).Create(&model).Error
	}
	if err != nil {
		return err
	}

	if bytes.Equal(existing.Signature, model.Signature) {
		return nil
	}

	return c.db.WithContext(ctx).
		Model(&confirmation{}).
		Where("transaction_hash = ? AND owner = ?", model.TransactionHash, model.Owner).
		Updates(map[string]any{
			"signature": model.Signature,
			"kind":      model.Kind,
		}).Error
}

// StoreApproval implements the on-chain approval side of the
// txproc.ConfirmationStorage interface. A missing (digest, owner) pair is
// created; an existing pair only has its executing transaction reference
// backfilled when it has none yet.
func (c *client) StoreApproval(ctx context.Context, conf txproc.Confirmation) error {
	model := confirmationToModel(conf)

	var existing confirmation
	err := c.db.WithContext(ctx).
		First(&existing, "transaction_hash = ? AND owner = ?", model.TransactionHash, model.Owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.db.WithContext(ctx).Create(&model).Error
	}
	if err != nil {
		return err
	}

	if existing.ExecTxHash != "" || model.ExecTxHash == "" {
		return nil
	}

	return c.db.WithContext(ctx).
		Model(&confirmation{}).
		Where("transaction_hash = ? AND owner = ?", model.TransactionHash, model.Owner).
		Update("exec_tx_hash", model.ExecTxHash).Error
}

// DeleteUnexecutedConfirmations implements the removed-owner cleanup of the
// txproc.ConfirmationStorage interface.
//
// It drops the owner's confirmations on the wallet's unexecuted transactions
// at or above the given nonce, which is where a removed owner's approvals
// stop counting.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - wallet: address of the wallet whose queue the confirmations belong to.
//   - nonce: the wallet's nonce at the time of the removal.
//   - owner: the removed owner whose confirmations are dropped.
//
// Returns:
//   - The number of removed confirmations.
//   - An error if the delete fails.
func (c *client) DeleteUnexecutedConfirmations(ctx context.Context, wallet common.Address, nonce uint64, owner common.Address) (int64, error) {
	queued := c.db.Model(&multisigTransaction{}).
		Select("hash").
		Where("wallet = ? AND exec_tx_hash = '' AND nonce >= ?", wallet.Hex(), nonce)

	result := c.db.WithContext(ctx).
		Where("owner = ? AND transaction_hash IN (?)", owner.Hex(), queued).
		Delete(&confirmation{})

	return result.RowsAffected, result.Error
}
