// Package txproc is the replay engine: it consumes decoded wallet calls in
// blockchain order and deterministically derives every wallet state
// transition, recording transactions, confirmations and module executions
// along the way.
package txproc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// defaultGasFloor is the gas consumption below which a traced call cannot
// have reached a real contract function: the proxy fallback alone ran.
const defaultGasFloor = 1_000

// Service applies decoded calls to wallet state.
type Service interface {
	// Process applies a single decoded call inside its own unit of work and
	// reports whether it was applied successfully. Expected domain
	// conditions (unknown function, missing prior state, invariant
	// violations) come back as a false result, not an error; an error means
	// the unit of work was aborted.
	Process(ctx context.Context, call DecodedCall) (bool, error)

	// ProcessBatch applies an ordered collection of decoded calls, possibly
	// spanning many wallets, as one unit of work. It returns one outcome per
	// input call, in input order. Per-call failures are absorbed; only a
	// data consistency failure (or a storage fault) aborts the batch, in
	// which case nothing is committed and the error is returned.
	ProcessBatch(ctx context.Context, calls []DecodedCall) ([]bool, error)

	// InvalidateCache drops the memoized configuration of the given wallets,
	// or of every wallet when called with none.
	InvalidateCache(wallets ...common.Address)
}

type service struct {
	chainID  int64
	gasFloor uint64

	storage  Storage
	traces   TraceSource
	versions VersionRegistry
	denylist Denylist
	userOps  UserOpScanner

	cache *statusCache
}

var _ Service = (*service)(nil)

type config struct {
	gasFloor uint64
	denylist Denylist
	userOps  UserOpScanner
}

type Option func(*config)

// WithGasFloor overrides the gas consumption threshold that separates real
// function calls from proxy fallback noise.
func WithGasFloor(gas uint64) Option {
	return func(c *config) {
		c.gasFloor = gas
	}
}

// WithDenylist makes the batch coordinator skip calls from banned wallets.
func WithDenylist(d Denylist) Option {
	return func(c *config) {
		c.denylist = d
	}
}

// WithUserOpScanner forwards module executions to an account abstraction
// detector.
func WithUserOpScanner(u UserOpScanner) Option {
	return func(c *config) {
		c.userOps = u
	}
}

// New builds the replay service for one chain. The chain id feeds the digest
// computation of post-1.3.0 wallets.
func New(chainID int64, storage Storage, traces TraceSource, versions VersionRegistry, opts ...Option) *service {
	cfg := config{
		gasFloor: defaultGasFloor,
		denylist: nopDenylist{},
		userOps:  nopUserOpScanner{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		chainID:  chainID,
		gasFloor: cfg.gasFloor,
		storage:  storage,
		traces:   traces,
		versions: versions,
		denylist: cfg.denylist,
		userOps:  cfg.userOps,
		cache:    newStatusCache(),
	}
}

func (s *service) InvalidateCache(wallets ...common.Address) {
	s.cache.invalidate(wallets...)
}
