// Package erc4337 detects account abstraction activity in transaction
// receipts. Wallets bundled through an ERC-4337 entry point do not sign the
// enclosing chain transaction themselves, so the only reliable marker is the
// UserOperationEvent the entry point emits for each executed operation.
package erc4337

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
	"github.com/gabapcia/safewatch/internal/pkg/types"
	"github.com/gabapcia/safewatch/internal/safetx"
	"github.com/gabapcia/safewatch/internal/txproc"
)

// userOperationEventTopic identifies UserOperationEvent(bytes32,address,
// address,uint256,bool,uint256,uint256), emitted once per executed user
// operation. The operation hash, sender and paymaster are indexed.
var userOperationEventTopic common.Hash

func init() {
	userOperationEventTopic = crypto.Keccak256Hash([]byte("UserOperationEvent(bytes32,address,address,uint256,bool,uint256,uint256)"))
}

// Canonical entry point deployments. Logs from any other emitter are ignored
// unless the detector is built with an explicit allow list.
var defaultEntryPoints = []common.Address{
	common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), // v0.6
	common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), // v0.7
}

// detector matches UserOperationEvent logs emitted by a known entry point
// against a wallet address.
type detector struct {
	entryPoints types.Set[common.Address]
}

var _ txproc.UserOpScanner = (*detector)(nil)

// NewDetector creates a user operation detector that accepts events from the
// given entry point contracts. When no entry points are provided the canonical
// v0.6 and v0.7 deployments are used.
//
// Parameters:
//   - entryPoints: contract addresses whose UserOperationEvent logs count
//
// Returns:
//   - txproc.UserOpScanner: the configured detector
func NewDetector(entryPoints ...common.Address) txproc.UserOpScanner {
	if len(entryPoints) == 0 {
		entryPoints = defaultEntryPoints
	}

	return &detector{entryPoints: types.NewSet(entryPoints...)}
}

// ProcessUserOperations counts the user operations inside the receipt logs
// whose indexed sender is the wallet. A count above zero means the wallet was
// driven through an entry point in this transaction.
//
// Parameters:
//   - ctx: context for cancellation
//   - wallet: wallet address expected as the operation sender
//   - txHash: hash of the enclosing chain transaction, used for logging
//   - logs: receipt logs of that transaction
//
// Returns:
//   - int: number of matching user operations
//   - error: always nil, the scan is local
func (d *detector) ProcessUserOperations(ctx context.Context, wallet common.Address, txHash common.Hash, logs []safetx.Log) (int, error) {
	var count int
	for _, entry := range logs {
		if !d.entryPoints.Contains(entry.Address) {
			continue
		}

		if len(entry.Topics) != 4 || entry.Topics[0] != userOperationEventTopic {
			continue
		}

		if common.BytesToAddress(entry.Topics[2].Bytes()) != wallet {
			continue
		}

		count++
	}

	if count > 0 {
		logger.Info(ctx, "user operations detected",
			"wallet", wallet.Hex(),
			"txHash", txHash.Hex(),
			"count", count,
		)
	}

	return count, nil
}
