// Package denylist manages the set of wallets the indexer refuses to
// process. Banned wallets keep their already indexed state, but new calls
// against them are marked processed without being applied.
package denylist

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Service defines the administrative interface for the wallet denylist.
//
// Implementations are responsible for validating input and delegating
// persistence to the configured Storage.
type Service interface {
	// Ban adds a wallet to the denylist.
	//
	// Parameters:
	//   - ctx: controls cancellation and timeout.
	//   - address: hex address of the wallet to ban.
	//
	// Returns:
	//   - An error if the address is malformed or the ban cannot be stored.
	Ban(ctx context.Context, address string) error

	// Unban removes a wallet from the denylist.
	//
	// Parameters:
	//   - ctx: controls cancellation and timeout.
	//   - address: hex address of the wallet to unban.
	//
	// Returns:
	//   - Whether the wallet was actually banned before the call.
	//   - An error if the address is malformed or the removal fails.
	Unban(ctx context.Context, address string) (bool, error)

	// Banned lists every currently banned wallet.
	Banned(ctx context.Context) ([]common.Address, error)
}

// service is the concrete implementation of the Service interface. It uses a
// Storage backend to persist the denylist.
type service struct {
	storage Storage
}

// Ensure compile-time compliance with the Service interface.
var _ Service = (*service)(nil)

// New creates a new instance of the denylist service using the provided
// Storage implementation.
//
// This constructor is intended to be used by dependency injection during
// application wiring.
func New(s Storage) *service {
	return &service{
		storage: s,
	}
}
