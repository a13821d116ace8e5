package postgres

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// DeleteMessageConfirmations implements the txproc.MessageStorage interface.
// Message confirmations are not scoped to one wallet, so losing a seat
// anywhere invalidates the owner's signatures everywhere.
func (c *client) DeleteMessageConfirmations(ctx context.Context, owner common.Address) (int64, error) {
	result := c.db.WithContext(ctx).
		Where("owner = ?", owner.Hex()).
		Delete(&messageConfirmation{})

	return result.RowsAffected, result.Error
}
