package txproc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/safesig"
	"github.com/gabapcia/safewatch/internal/safetx"
)

// WalletContract ties a wallet address to the chain transaction that set it
// up. The origin transaction is written once and never replaced.
type WalletContract struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	CreatedAt   time.Time
}

// MultisigTransaction is an owner-approved wallet transaction, keyed by the
// EIP-712 digest of its canonical fields. ExecTxHash is zero until the
// execution is observed on chain.
type MultisigTransaction struct {
	Hash           common.Hash
	Wallet         common.Address
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      safetx.Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          uint64
	Signatures     []byte
	ExecTxHash     common.Hash
	Failed         bool
	Trusted        bool
	Timestamp      time.Time
}

// Confirmation is one owner's approval of a multisig transaction digest,
// unique per (digest, owner) pair.
type Confirmation struct {
	TransactionHash common.Hash
	Owner           common.Address
	Signature       []byte
	Kind            safesig.Kind
	ExecTxHash      common.Hash
	Timestamp       time.Time
}

// ModuleTransaction is an execution a module pushed through a wallet without
// signature collection, recorded once per decoded call.
type ModuleTransaction struct {
	CallID    uint64
	Wallet    common.Address
	Module    common.Address
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation safetx.Operation
	Failed    bool
	TxHash    common.Hash
	Timestamp time.Time
}
