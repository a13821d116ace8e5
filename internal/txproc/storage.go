package txproc

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrStatusNotFound is returned when a wallet has neither a latest
// configuration row nor any snapshot to rebuild one from. Calls against such
// wallets are rejected without failing the batch, since they usually come
// from proxies running an unsupported master copy.
var ErrStatusNotFound = errors.New("wallet status not found")

// StatusStorage persists wallet configurations as an append-only snapshot
// history plus one mutable latest row per wallet.
//
// AppendSnapshot and UpsertLatest are always called together, inside the same
// unit of work: the history entry is the record, the latest row is the index
// into it. Neither is ever called on its own.
type StatusStorage interface {
	// LatestStatus returns the wallet's current configuration, rebuilding it
	// from the newest snapshot when the latest row is missing. Returns
	// ErrStatusNotFound when the wallet has no recorded state at all.
	LatestStatus(ctx context.Context, wallet common.Address) (WalletStatus, error)

	// AppendSnapshot inserts a historical configuration entry. Re-inserting
	// the snapshot of an already recorded call is a no-op, so replays stay
	// idempotent.
	AppendSnapshot(ctx context.Context, status WalletStatus) error

	// UpsertLatest makes the given configuration the wallet's current one.
	UpsertLatest(ctx context.Context, status WalletStatus) error
}

// WalletStorage persists the wallet contract records themselves.
type WalletStorage interface {
	// EnsureWallet creates the wallet record if it does not exist. An
	// existing record keeps its origin transaction untouched.
	EnsureWallet(ctx context.Context, wallet WalletContract) error
}

// TransactionStorage persists multisig and module transactions.
type TransactionStorage interface {
	// StoreExecution records a mined multisig transaction. The first sighting
	// of a digest creates the row; a digest that was proposed earlier gets
	// its executing transaction, failure flag, signatures and trusted flag
	// filled in the first time an execution is observed. Later sightings
	// leave the row alone.
	StoreExecution(ctx context.Context, tx MultisigTransaction) error

	// DeleteQueuedTransactions removes the wallet's proposed transactions
	// whose nonce is above its highest executed nonce, returning how many
	// went away. Used when a master copy change invalidates their digests.
	DeleteQueuedTransactions(ctx context.Context, wallet common.Address) (int64, error)

	// StoreModuleTransaction records a module-initiated execution, keyed by
	// the decoded call that carried it. Replays are no-ops.
	StoreModuleTransaction(ctx context.Context, tx ModuleTransaction) error

	// MarkRelevant notes that a chain transaction touches the wallet, so the
	// wallet's activity feed can include it. Idempotent per (wallet, hash).
	MarkRelevant(ctx context.Context, wallet common.Address, txHash common.Hash, at time.Time) error
}

// ConfirmationStorage persists owner confirmations of multisig digests.
type ConfirmationStorage interface {
	// StoreConfirmation records a confirmation recovered from an executed
	// transaction's signature blob. The (digest, owner) pair is created if
	// missing; when it exists with a different stored signature, the
	// signature is replaced.
	StoreConfirmation(ctx context.Context, confirmation Confirmation) error

	// StoreApproval records an on-chain hash approval. The (digest, owner)
	// pair is created if missing; an existing pair only has its executing
	// transaction reference backfilled when it has none yet.
	StoreApproval(ctx context.Context, confirmation Confirmation) error

	// DeleteUnexecutedConfirmations drops confirmations a removed owner gave
	// to the wallet's not yet executed transactions at or above the given
	// nonce, returning how many were dropped.
	DeleteUnexecutedConfirmations(ctx context.Context, wallet common.Address, nonce uint64, owner common.Address) (int64, error)
}

// DelegateStorage persists the delegate grants owners hand out.
type DelegateStorage interface {
	// DeleteDelegations removes every delegate grant the given owner rooted
	// on the wallet, returning how many were removed.
	DeleteDelegations(ctx context.Context, wallet common.Address, delegator common.Address) (int64, error)
}

// MessageStorage persists off-chain message confirmations.
type MessageStorage interface {
	// DeleteMessageConfirmations removes every message confirmation signed
	// by the given owner, across all wallets, returning how many were
	// removed.
	DeleteMessageConfirmations(ctx context.Context, owner common.Address) (int64, error)
}

// CallStorage hands out decoded calls and tracks their processed flag.
type CallStorage interface {
	// PendingCalls returns unprocessed decoded calls in processing order:
	// wallet setups first, then chain order by block, transaction index and
	// call identity. A limit of zero means no limit.
	PendingCalls(ctx context.Context, limit int) ([]DecodedCall, error)

	// PendingCallsForWallet is PendingCalls narrowed to one wallet.
	PendingCallsForWallet(ctx context.Context, wallet common.Address) ([]DecodedCall, error)

	// MarkProcessed flips the processed flag of the given calls in one bulk
	// update.
	MarkProcessed(ctx context.Context, callIDs []uint64) error
}

// Storage aggregates every persistence concern the processor touches behind
// one transactional boundary.
type Storage interface {
	StatusStorage
	WalletStorage
	TransactionStorage
	ConfirmationStorage
	DelegateStorage
	MessageStorage
	CallStorage

	// Transact runs fn against a transactional view of the store: everything
	// fn does commits or rolls back as one. Calling Transact again on the
	// view joins the outer unit of work as a savepoint, so an inner failure
	// rolls back only the inner work.
	Transact(ctx context.Context, fn func(Storage) error) error
}
