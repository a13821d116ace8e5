package txproc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrPreviousTraceNotFound is returned when the trace source cannot produce
// the call preceding a given one. The processor treats it as a data
// consistency failure: the replay structurally depends on that trace, so the
// whole batch aborts instead of silently dropping the call.
var ErrPreviousTraceNotFound = errors.New("previous trace not found")

// TraceSource resolves raw execution traces the decoded calls alone cannot
// provide.
type TraceSource interface {
	// PreviousCall walks up the call tree from the call at the given path
	// and returns the closest ancestor that is not a delegate call. Returns
	// ErrPreviousTraceNotFound when the walk runs out of ancestors or the
	// trace data cannot be fetched.
	PreviousCall(ctx context.Context, txHash common.Hash, path []int64) (RawCall, error)
}
