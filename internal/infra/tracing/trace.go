package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pkg/types"
	"github.com/gabapcia/safewatch/internal/txproc"
)

// delegateCallType is the call type proxies use to run master copy code in
// their own storage context. Delegate frames never identify the initiator of
// a call, which is why the ancestor walk skips them.
const delegateCallType = "delegatecall"

type (
	// TraceActionResponse represents the action part of a single trace entry
	// returned by the trace_transaction JSON-RPC API.
	TraceActionResponse struct {
		From     string    `json:"from"`
		To       string    `json:"to"`
		CallType string    `json:"callType"`
		Gas      types.Hex `json:"gas"`
		Input    string    `json:"input"`
		Value    types.Hex `json:"value"`
	}

	// TraceResultResponse represents the result part of a trace entry. It is
	// absent when the call failed before consuming gas.
	TraceResultResponse struct {
		GasUsed types.Hex `json:"gasUsed"`
		Output  string    `json:"output"`
	}

	// TraceResponse represents one execution step of a transaction as
	// returned by the trace_transaction JSON-RPC API. TraceAddress locates
	// the step within the call tree: the root call has an empty address, its
	// n-th child appends n, and so on.
	TraceResponse struct {
		Action       TraceActionResponse  `json:"action"`
		Result       *TraceResultResponse `json:"result"`
		Subtraces    int64                `json:"subtraces"`
		TraceAddress []int64              `json:"traceAddress"`
		Type         string               `json:"type"`
		Error        string               `json:"error"`
	}
)

// toRawCall converts a TraceResponse into the processor's raw call form.
func (t TraceResponse) toRawCall() txproc.RawCall {
	call := txproc.RawCall{
		From:  common.HexToAddress(t.Action.From),
		To:    common.HexToAddress(t.Action.To),
		Kind:  strings.ToLower(t.Action.CallType),
		Value: t.Action.Value.Big(),
		Gas:   t.Action.Gas.Uint64(),
		Input: common.FromHex(t.Action.Input),
		Path:  slices.Clone(t.TraceAddress),
		Error: t.Error,
	}
	if t.Result != nil {
		call.GasUsed = t.Result.GasUsed.Uint64()
	}

	return call
}

// tracePathKey renders a trace address as a map key for the ancestor walk.
func tracePathKey(path []int64) string {
	return fmt.Sprint(path)
}

// transactionTraces fetches the full trace tree of a transaction, retrying
// provider-side failures. An empty or null result is returned as
// errTraceMissing without further attempts.
func (c *client) transactionTraces(ctx context.Context, txHash common.Hash) ([]TraceResponse, error) {
	var traces []TraceResponse
	err := c.retrier.Execute(ctx, func() error {
		data, err := c.conn.Fetch(ctx, "trace_transaction", txHash.Hex())
		if err != nil {
			return err
		}

		if err := json.Unmarshal(data, &traces); err != nil {
			return err
		}

		if len(traces) == 0 {
			return fmt.Errorf("%w: %s", errTraceMissing, txHash)
		}

		return nil
	})

	return traces, err
}

// PreviousCall implements the txproc.TraceSource interface.
//
// It fetches the transaction's trace tree and walks up from the call at the
// given path, returning the closest ancestor that is not a delegate call.
// For a wallet frame that is the call that entered the wallet, and its From
// is the initiator the processor is after (the module behind a module
// execution, or the sender behind an owner approval).
//
// Parameters:
//   - ctx: context used for cancellation and timeout control.
//   - txHash: hash of the chain transaction whose traces are inspected.
//   - path: trace address of the call whose ancestor is requested.
//
// Returns:
//   - The closest non-delegate ancestor as a raw call.
//   - txproc.ErrPreviousTraceNotFound when the call sits at the trace root,
//     the node has no traces for the transaction, or the fetch failed after
//     every retry.
func (c *client) PreviousCall(ctx context.Context, txHash common.Hash, path []int64) (txproc.RawCall, error) {
	if len(path) == 0 {
		return txproc.RawCall{}, fmt.Errorf("%w: call at the trace root has no ancestor", txproc.ErrPreviousTraceNotFound)
	}

	traces, err := c.transactionTraces(ctx, txHash)
	if err != nil {
		return txproc.RawCall{}, fmt.Errorf("%w: %s", txproc.ErrPreviousTraceNotFound, err)
	}

	// Index the tree by trace address for the ancestor walk
	byPath := make(map[string]TraceResponse, len(traces))
	for _, trace := range traces {
		byPath[tracePathKey(trace.TraceAddress)] = trace
	}

	for depth := len(path) - 1; depth >= 0; depth-- {
		trace, ok := byPath[tracePathKey(path[:depth])]
		if !ok {
			continue
		}

		if strings.EqualFold(trace.Action.CallType, delegateCallType) {
			continue
		}

		return trace.toRawCall(), nil
	}

	return txproc.RawCall{}, fmt.Errorf("%w: no non-delegate ancestor at %v of %s", txproc.ErrPreviousTraceNotFound, path, txHash)
}
