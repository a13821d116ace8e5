package txproc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/safetx"
)

// Call kinds as reported by the trace source. A raw call with no kind is a
// contract creation or a reward step.
const (
	CallKindCall         = "call"
	CallKindDelegateCall = "delegatecall"
	CallKindCallCode     = "callcode"
	CallKindStaticCall   = "staticcall"
)

// DecodedCall is one successfully interpreted internal call, ready to be
// replayed against wallet state.
//
// From is the wallet itself: proxies delegate-call into their master copy, so
// the caller of the decoded frame is the proxy address and To is the master
// copy whose code ran. TracePath addresses the raw trace within TxHash, and
// Logs carries the receipt logs of the enclosing chain transaction for the
// failure scans.
type DecodedCall struct {
	ID          uint64
	TxHash      common.Hash
	BlockNumber uint64
	TxIndex     uint64
	Timestamp   time.Time
	TracePath   []int64
	From        common.Address
	To          common.Address
	Value       *big.Int
	GasUsed     uint64
	Function    string
	Arguments   Arguments
	Logs        []safetx.Log
}

// RawCall is a single EVM execution step, addressable by its transaction and
// path. The processor only ever sees raw calls through the previous trace
// lookup, when a decoded call lacks the context to identify its initiator.
type RawCall struct {
	From    common.Address
	To      common.Address
	Kind    string
	Value   *big.Int
	Gas     uint64
	GasUsed uint64
	Input   []byte
	Path    []int64
	Error   string
}
