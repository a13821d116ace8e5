// Package jsonrpc implements a minimal JSON-RPC 2.0 client over HTTP. It is
// transport only: callers own method names and result decoding. Request ids
// are random UUIDs so concurrent calls against the same node stay
// distinguishable in provider logs.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrProviderReturnedError indicates the remote JSON-RPC server answered with
// an error object instead of a result.
var ErrProviderReturnedError = errors.New("provider error")

// request is a standard JSON-RPC 2.0 request envelope.
type request struct {
	JsonRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// response is a standard JSON-RPC 2.0 response envelope.
type response struct {
	JsonRPC string `json:"jsonrpc"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Err converts a JSON-RPC error object into a Go error wrapping
// ErrProviderReturnedError, or nil when the response succeeded.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}

	return fmt.Errorf("%w: [%d] - %s", ErrProviderReturnedError, r.Error.Code, r.Error.Message)
}

// Client is a generic JSON-RPC client, abstracted for mocking in tests.
type Client interface {
	// Fetch sends a JSON-RPC request with the given method name and parameters
	// and returns the raw JSON result. A server-side error object is surfaced
	// as an error wrapping ErrProviderReturnedError.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// client sends JSON-RPC requests to a single provider endpoint.
type client struct {
	providerEndpoint string
	httpClient       *http.Client
}

// Compile-time assertion that client implements the Client interface.
var _ Client = (*client)(nil)

// Fetch implements Client.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(request{
		JsonRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var data response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}

	return data.Result, data.Err()
}

// NewClient returns a Client that sends JSON-RPC requests to providerEndpoint
// using the given HTTP client.
func NewClient(httpClient *http.Client, providerEndpoint string) *client {
	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httpClient,
	}
}
