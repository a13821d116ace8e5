package safetx

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Log is a receipt log entry, reduced to the fields the failure scans need.
// A zero Address means the emitting contract is unknown.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

var (
	// executionFailureTopic identifies ExecutionFailure(bytes32,uint256),
	// emitted by master copies 1.1.1 and later.
	executionFailureTopic common.Hash

	// executionFailedTopic identifies ExecutionFailed(bytes32), the 1.0.0
	// spelling of the same event.
	executionFailedTopic common.Hash

	// moduleFailureTopic identifies ExecutionFromModuleFailure(address),
	// where the module is the only indexed argument.
	moduleFailureTopic common.Hash
)

func init() {
	executionFailureTopic = crypto.Keccak256Hash([]byte("ExecutionFailure(bytes32,uint256)"))
	executionFailedTopic = crypto.Keccak256Hash([]byte("ExecutionFailed(bytes32)"))
	moduleFailureTopic = crypto.Keccak256Hash([]byte("ExecutionFromModuleFailure(address)"))
}

// ExecutionFailed reports whether the receipt logs carry a failure event for
// the multisig transaction with the given digest. The digest is matched either
// as the second topic or as the first word of the log data, since master
// copies differ on whether they index it.
func ExecutionFailed(logs []Log, txHash common.Hash) bool {
	for _, entry := range logs {
		if len(entry.Topics) == 0 {
			continue
		}

		if entry.Topics[0] != executionFailureTopic && entry.Topics[0] != executionFailedTopic {
			continue
		}

		if len(entry.Topics) == 2 && entry.Topics[1] == txHash {
			return true
		}

		if len(entry.Data) >= 32 && common.BytesToHash(entry.Data[:32]) == txHash {
			return true
		}
	}

	return false
}

// ModuleExecutionFailed reports whether the receipt logs carry a module
// failure event for the given module. When a log names its emitting contract
// it must be the wallet itself; logs with an unknown emitter are accepted.
func ModuleExecutionFailed(logs []Log, wallet, module common.Address) bool {
	for _, entry := range logs {
		if len(entry.Topics) != 2 || entry.Topics[0] != moduleFailureTopic {
			continue
		}

		if entry.Address != (common.Address{}) && entry.Address != wallet {
			continue
		}

		if common.BytesToAddress(entry.Topics[1].Bytes()) == module {
			return true
		}
	}

	return false
}
