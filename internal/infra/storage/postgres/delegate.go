package postgres

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// DeleteDelegations implements the txproc.DelegateStorage interface. It
// removes every delegate grant the given owner rooted on the wallet, which
// happens when the owner loses its seat.
func (c *client) DeleteDelegations(ctx context.Context, wallet common.Address, delegator common.Address) (int64, error) {
	result := c.db.WithContext(ctx).
		Where("wallet = ? AND delegator = ?", wallet.Hex(), delegator.Hex()).
		Delete(&delegation{})

	return result.RowsAffected, result.Error
}
