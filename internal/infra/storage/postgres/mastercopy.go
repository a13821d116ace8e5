package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// VersionForMasterCopy implements the txproc.VersionRegistry interface over
// the registered master copy table.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - address: master copy address to look up.
//
// Returns:
//   - The registered version string, e.g. "1.3.0".
//   - txproc.ErrVersionNotFound when the address was never registered, or
//     another error if the query fails.
func (c *client) VersionForMasterCopy(ctx context.Context, address common.Address) (string, error) {
	var model masterCopy
	err := c.db.WithContext(ctx).First(&model, "address = ?", address.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", txproc.ErrVersionNotFound, address)
	}
	if err != nil {
		return "", err
	}

	return model.Version, nil
}

// RegisterMasterCopy records the version a master copy address runs, plus
// whether it is an L2 build emitting its own execution events. Registering an
// address again overwrites its row.
func (c *client) RegisterMasterCopy(ctx context.Context, address common.Address, version string, l2 bool) error {
	model := masterCopy{
		Address:      address.Hex(),
		Version:      version,
		L2:           l2,
		RegisteredAt: time.Now().UTC(),
	}

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

// MasterCopies lists every registered master copy, newest registration
// first.
func (c *client) MasterCopies(ctx context.Context) ([]txproc.MasterCopy, error) {
	var models []masterCopy
	err := c.db.WithContext(ctx).
		Order("registered_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	copies := make([]txproc.MasterCopy, len(models))
	for i, model := range models {
		copies[i] = txproc.MasterCopy{
			Address:      common.HexToAddress(model.Address),
			Version:      model.Version,
			L2:           model.L2,
			RegisteredAt: model.RegisteredAt,
		}
	}

	return copies, nil
}
