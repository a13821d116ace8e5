package txproc

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/safetx"
)

// ErrVersionNotFound is returned when a master copy address was never
// registered with a contract version.
var ErrVersionNotFound = errors.New("master copy version not found")

// MasterCopy is one registry entry: a known implementation address, the
// version its code identifies as, and whether it is an L2 build that emits
// its own execution events.
type MasterCopy struct {
	Address      common.Address
	Version      string
	L2           bool
	RegisteredAt time.Time
}

// VersionRegistry maps master copy addresses to the contract version they
// run, which drives digest encoding and signature compatibility checks.
type VersionRegistry interface {
	// VersionForMasterCopy returns the registered version for the address,
	// or ErrVersionNotFound when the master copy is unknown.
	VersionForMasterCopy(ctx context.Context, masterCopy common.Address) (string, error)
}

// Denylist filters out wallets that must not be indexed.
type Denylist interface {
	// FilterBanned returns the subset of the given wallets that are banned.
	FilterBanned(ctx context.Context, wallets []common.Address) ([]common.Address, error)
}

// UserOpScanner inspects a chain transaction's receipt logs for account
// abstraction user operations submitted on behalf of the wallet. The count
// is informational.
type UserOpScanner interface {
	ProcessUserOperations(ctx context.Context, wallet common.Address, txHash common.Hash, logs []safetx.Log) (int, error)
}

// nopDenylist bans nothing.
type nopDenylist struct{}

func (nopDenylist) FilterBanned(context.Context, []common.Address) ([]common.Address, error) {
	return nil, nil
}

// nopUserOpScanner finds nothing.
type nopUserOpScanner struct{}

func (nopUserOpScanner) ProcessUserOperations(context.Context, common.Address, common.Hash, []safetx.Log) (int, error) {
	return 0, nil
}
