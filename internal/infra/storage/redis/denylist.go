package redis

import (
	"bytes"
	"context"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/denylist"
	"github.com/gabapcia/safewatch/internal/txproc"
)

// denylistKey is the Redis set holding the hex addresses of banned wallets.
const denylistKey = "denylist:wallets"

// FilterBanned implements the txproc.Denylist interface using Redis sets.
//
// It checks which of the given wallets are currently banned. Internally, this
// uses the SMISMEMBER Redis command for efficient multi-member existence
// checks, one round trip per batch regardless of how many wallets it holds.
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - wallets: list of wallet addresses to check.
//
// Returns:
//   - A slice containing only the wallets that are banned.
//   - An error if the Redis query fails or cannot be completed.
func (c *client) FilterBanned(ctx context.Context, wallets []common.Address) ([]common.Address, error) {
	if len(wallets) == 0 {
		return nil, nil
	}

	// Convert to []any, required by the SMIsMember Redis command
	members := make([]any, len(wallets))
	for i, wallet := range wallets {
		members[i] = wallet.Hex()
	}

	// Perform bulk membership check in the Redis set
	matchResult, err := c.conn.SMIsMember(ctx, denylistKey, members...).Result()
	if err != nil {
		return nil, err
	}

	// Filter the input wallets based on membership result
	banned := make([]common.Address, 0, len(wallets))
	for i, isMember := range matchResult {
		if isMember {
			banned = append(banned, wallets[i])
		}
	}

	return banned, nil
}

// BanWallet implements the denylist.Storage interface by adding the wallet's
// hex address to the denylist set. Banning an already banned wallet is a
// no-op.
func (c *client) BanWallet(ctx context.Context, wallet common.Address) error {
	return c.conn.SAdd(ctx, denylistKey, wallet.Hex()).Err()
}

// UnbanWallet removes the wallet from the denylist set.
//
// Returns:
//   - Whether the wallet was banned before the call, derived from the SREM
//     removal count.
//   - An error if the Redis operation fails.
func (c *client) UnbanWallet(ctx context.Context, wallet common.Address) (bool, error) {
	removed, err := c.conn.SRem(ctx, denylistKey, wallet.Hex()).Result()
	if err != nil {
		return false, err
	}

	return removed > 0, nil
}

// BannedWallets returns every banned wallet in address order. SMEMBERS hands
// the set back in arbitrary order, so the result is sorted to keep listings
// stable between calls.
func (c *client) BannedWallets(ctx context.Context) ([]common.Address, error) {
	members, err := c.conn.SMembers(ctx, denylistKey).Result()
	if err != nil {
		return nil, err
	}

	wallets := make([]common.Address, len(members))
	for i, member := range members {
		wallets[i] = common.HexToAddress(member)
	}

	slices.SortFunc(wallets, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})

	return wallets, nil
}

// Compile-time assertions that the client serves both the processor's
// filtering port and the administrative storage port.
var (
	_ txproc.Denylist  = new(client)
	_ denylist.Storage = new(client)
)
