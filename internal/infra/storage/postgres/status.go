package postgres

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// LatestStatus implements the txproc.StatusStorage interface over two tables:
// a mutable latest row per wallet and an append-only snapshot history.
//
// The latest row is authoritative. When it is missing (for example after a
// partial restore), the newest snapshot rebuilds it on the fly, newest
// meaning highest (nonce, block, transaction index, call) position.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - wallet: address of the wallet whose configuration is requested.
//
// Returns:
//   - The wallet's current configuration.
//   - txproc.ErrStatusNotFound when the wallet has no recorded state at all,
//     or another error if the query fails.
func (c *client) LatestStatus(ctx context.Context, wallet common.Address) (txproc.WalletStatus, error) {
	var latest walletStatusLatest
	err := c.db.WithContext(ctx).First(&latest, "wallet = ?", wallet.Hex()).Error
	if err == nil {
		return statusFromLatest(latest)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return txproc.WalletStatus{}, err
	}

	// No latest row. Fall back to the newest snapshot, if any.
	var snapshot walletStatusSnapshot
	err = c.db.WithContext(ctx).
		Where("wallet = ?", wallet.Hex()).
		Order("nonce DESC, block_number DESC, tx_index DESC, call_id DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return txproc.WalletStatus{}, txproc.ErrStatusNotFound
	}
	if err != nil {
		return txproc.WalletStatus{}, err
	}

	return statusFromSnapshot(snapshot)
}

// AppendSnapshot inserts the configuration produced by one decoded call into
// the history table. The call identity is the primary key, so replaying a
// call leaves the original snapshot untouched.
func (c *client) AppendSnapshot(ctx context.Context, status txproc.WalletStatus) error {
	model, err := statusToSnapshot(status)
	if err != nil {
		return err
	}

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

// UpsertLatest makes the given configuration the wallet's current one,
// inserting or overwriting the single latest row.
func (c *client) UpsertLatest(ctx context.Context, status txproc.WalletStatus) error {
	model, err := statusToLatest(status)
	if err != nil {
		return err
	}

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}
