package denylist

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pkg/validator"
)

// WalletRef identifies a wallet by its hex address. The address is validated
// before any storage call.
type WalletRef struct {
	Address string `validate:"required,eth_addr"`
}

// Storage defines the persistence interface for the denylist itself.
//
// The processor consumes the same data through its own filtering port; this
// interface covers the administrative writes and the full listing.
type Storage interface {
	// BanWallet adds the wallet to the denylist. Banning a wallet that is
	// already banned is a no-op.
	BanWallet(ctx context.Context, wallet common.Address) error

	// UnbanWallet removes the wallet from the denylist, reporting whether it
	// was present.
	UnbanWallet(ctx context.Context, wallet common.Address) (bool, error)

	// BannedWallets returns every banned wallet.
	BannedWallets(ctx context.Context) ([]common.Address, error)
}

// parseWallet validates the raw address and converts it to its binary form.
func parseWallet(address string) (common.Address, error) {
	ref := WalletRef{Address: address}
	if err := validator.Validate(ref); err != nil {
		return common.Address{}, err
	}

	return common.HexToAddress(ref.Address), nil
}

// Ban validates the address and adds the wallet to the denylist.
func (s *service) Ban(ctx context.Context, address string) error {
	wallet, err := parseWallet(address)
	if err != nil {
		return err
	}

	return s.storage.BanWallet(ctx, wallet)
}

// Unban validates the address and removes the wallet from the denylist,
// reporting whether it was banned in the first place.
func (s *service) Unban(ctx context.Context, address string) (bool, error) {
	wallet, err := parseWallet(address)
	if err != nil {
		return false, err
	}

	return s.storage.UnbanWallet(ctx, wallet)
}

// Banned lists every currently banned wallet.
func (s *service) Banned(ctx context.Context) ([]common.Address, error) {
	return s.storage.BannedWallets(ctx)
}
