// Package pipeline drives the indexing loop. It polls the call store for
// pending decoded calls in processing queue order and feeds them to the
// replay coordinator until the queue is drained, then waits for the decoder
// to produce more work.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/txproc"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
//
// The service must be started only once per lifecycle.
var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	// defaultBatchSize bounds how many pending calls one replay batch takes.
	defaultBatchSize = 500

	// defaultPollInterval is how long the loop sleeps after draining the queue.
	defaultPollInterval = 5 * time.Second
)

// CallSource reads the decoded call queue. It is the subset of the call store
// the pipeline needs: pending work in processing order, globally or for a
// single wallet, plus the stale call count used to flag out-of-order arrivals.
type CallSource interface {
	// PendingCalls returns unprocessed decoded calls in processing queue
	// order. A limit of zero means no limit.
	PendingCalls(ctx context.Context, limit int) ([]txproc.DecodedCall, error)

	// PendingCallsForWallet returns the unprocessed decoded calls of one
	// wallet in processing queue order.
	PendingCallsForWallet(ctx context.Context, wallet common.Address) ([]txproc.DecodedCall, error)

	// StalePendingCalls counts the wallet's pending calls that sit before its
	// latest applied call in chain order.
	StalePendingCalls(ctx context.Context, wallet common.Address) (int64, error)
}

// Processor replays decoded call batches against wallet state.
type Processor interface {
	// ProcessBatch applies the calls in order and reports per-call success.
	ProcessBatch(ctx context.Context, calls []txproc.DecodedCall) ([]bool, error)
}

// Service defines the pipeline lifecycle and the one-shot reprocessing
// entrypoint.
type Service interface {
	// Start launches the background polling loop that feeds pending decoded
	// calls to the replay coordinator.
	//
	// Returns ErrServiceAlreadyStarted if Start is called more than once.
	// Call Close to shut down the loop.
	Start(ctx context.Context) error

	// ProcessWallet synchronously drains the pending decoded calls of a
	// single wallet. Pending calls that predate the wallet's applied state
	// are reported in the log before the drain begins.
	ProcessWallet(ctx context.Context, wallet common.Address) error

	// Close stops the polling loop and waits for the in-flight batch to
	// finish. It is safe to call Close even if the service was never started.
	Close()
}

// closeFunc defines a cleanup routine to stop background goroutines.
type closeFunc func()

// service is the internal implementation of the pipeline Service interface.
type service struct {
	mu        sync.Mutex // protects lifecycle state
	isStarted bool       // ensures Start is called only once
	closeFunc closeFunc  // cancels the polling loop and waits for it

	source    CallSource // pending decoded call queue
	processor Processor  // batch replay coordinator

	batchSize    int           // calls per batch handed to the processor
	pollInterval time.Duration // sleep between polls of a drained queue
}

// Compile-time check to ensure *service implements the Service interface.
var _ Service = (*service)(nil)

// Option customizes the pipeline service.
type Option func(*service)

// WithBatchSize sets how many pending calls are handed to the processor per
// batch. Values below one keep the default.
func WithBatchSize(size int) Option {
	return func(s *service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithPollInterval sets how long the loop sleeps once the queue is drained.
// Values below or equal to zero keep the default.
func WithPollInterval(interval time.Duration) Option {
	return func(s *service) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// Start launches the polling loop in a background goroutine.
//
// Returns ErrServiceAlreadyStarted if the service is already running.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	stopped := s.startProcessPendingCalls(ctx)

	s.closeFunc = func() {
		cancel()
		<-stopped
	}
	s.isStarted = true
	return nil
}

// Close stops the polling loop and blocks until it has returned, so no batch
// is left mid-flight when Close comes back.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}

	s.closeFunc = nil
	s.isStarted = false
}

// New creates a pipeline service reading from the given call source and
// replaying through the given processor.
func New(source CallSource, processor Processor, opts ...Option) *service {
	s := &service{
		source:       source,
		processor:    processor,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}
