// Package tracing implements the txproc.TraceSource interface on top of the
// trace_transaction JSON-RPC API of an archive node.
package tracing

import (
	"errors"

	"github.com/gabapcia/safewatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/safewatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/safewatch/internal/txproc"
)

// errTraceMissing indicates the node answered but holds no traces for the
// transaction. That answer is definitive, so it is never retried.
var errTraceMissing = errors.New("transaction has no traces")

// client resolves raw execution traces through a JSON-RPC connection to an
// archive node.
type client struct {
	conn    jsonrpc.Client // underlying JSON-RPC client used to query the node
	retrier retry.Retry    // retry policy for provider-side failures
}

// Ensure client implements the txproc.TraceSource interface at compile time.
var _ txproc.TraceSource = (*client)(nil)

// newTraceRetrier builds the retry policy trace lookups run under: provider
// and transport failures are retried, a definitive "no traces" answer is not.
func newTraceRetrier(opts ...retry.Option) retry.Retry {
	options := append([]retry.Option{
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, errTraceMissing)
		}),
	}, opts...)

	return retry.New(options...)
}

// NewClient creates a new trace source using the provided JSON-RPC
// connection. The node behind it must expose the trace_transaction method
// and retain historical state for the blocks being indexed.
func NewClient(conn jsonrpc.Client) *client {
	return &client{
		conn:    conn,
		retrier: newTraceRetrier(),
	}
}
