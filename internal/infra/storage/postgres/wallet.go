package postgres

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// EnsureWallet implements the txproc.WalletStorage interface. The wallet
// address is the primary key and conflicts are ignored, so the origin
// transaction recorded by the first setup survives replays and later setup
// calls against the same proxy.
func (c *client) EnsureWallet(ctx context.Context, wallet txproc.WalletContract) error {
	model := walletContract{
		Address:     wallet.Address.Hex(),
		TxHash:      wallet.TxHash.Hex(),
		BlockNumber: wallet.BlockNumber,
		CreatedAt:   wallet.CreatedAt,
	}

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}
