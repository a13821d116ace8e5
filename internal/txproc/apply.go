package txproc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
	"github.com/gabapcia/safewatch/internal/safesig"
	"github.com/gabapcia/safewatch/internal/safetx"
)

// walletOp is the closed set of state transitions the processor knows how to
// apply. Decoded function names map onto it once, and the dispatch switches
// over the variants instead of comparing strings.
type walletOp int

const (
	opUnsupported walletOp = iota
	opSetup
	opAddOwner
	opRemoveOwner
	opSwapOwner
	opChangeThreshold
	opChangeMasterCopy
	opSetFallbackHandler
	opSetGuard
	opEnableModule
	opDisableModule
	opModuleExecution
	opApproveHash
	opExecution
)

func operationFor(function string) walletOp {
	switch function {
	case "setup":
		return opSetup
	case "addOwnerWithThreshold":
		return opAddOwner
	case "removeOwner", "removeOwnerWithThreshold":
		return opRemoveOwner
	case "swapOwner":
		return opSwapOwner
	case "changeThreshold":
		return opChangeThreshold
	case "changeMasterCopy":
		return opChangeMasterCopy
	case "setFallbackHandler":
		return opSetFallbackHandler
	case "setGuard":
		return opSetGuard
	case "enableModule":
		return opEnableModule
	case "disableModule":
		return opDisableModule
	case "execTransactionFromModule", "execTransactionFromModuleReturnData":
		return opModuleExecution
	case "approveHash":
		return opApproveHash
	case "execTransaction":
		return opExecution
	default:
		return opUnsupported
	}
}

// apply replays one decoded call against wallet state. It returns whether
// the call was applied, with false covering every expected domain rejection.
// Errors mean the enclosing unit of work must roll back: invariant
// violations (ErrOwnerNotFound, ErrModuleNotFound) are absorbed one level
// up, anything else aborts the batch.
func (s *service) apply(ctx context.Context, store Storage, call DecodedCall) (bool, error) {
	if call.GasUsed < s.gasFloor {
		// The proxy fallback burns almost no gas, so this trace never
		// reached a real wallet function despite decoding as one.
		logger.Debug(ctx, "rejecting call below the gas floor",
			"wallet", call.From,
			"call.id", call.ID,
			"gas_used", call.GasUsed,
		)
		return false, nil
	}

	op := operationFor(call.Function)

	if op == opSetup && call.From != (common.Address{}) {
		if err := s.applySetup(ctx, store, call); err != nil {
			return false, err
		}
		return true, nil
	}

	latest, err := s.loadStatus(ctx, store, call.From)
	if err != nil {
		if errors.Is(err, ErrStatusNotFound) {
			// Usually a proxy running a master copy this indexer does not
			// support, so there is no state to transition.
			logger.Debug(ctx, "no wallet state for call",
				"wallet", call.From,
				"call.id", call.ID,
				"function", call.Function,
			)
			return false, nil
		}
		return false, err
	}

	if latest.newerThan(call) {
		logger.Warn(ctx, "processing call older than the recorded wallet state",
			"wallet", call.From,
			"call.id", call.ID,
			"status.call_id", latest.CallID,
		)
	}

	next := latest.clone()
	next.CallID = call.ID
	next.BlockNumber = call.BlockNumber
	next.TxIndex = call.TxIndex

	switch op {
	case opAddOwner:
		err = s.applyAddOwner(call, &next)
	case opRemoveOwner:
		err = s.applyRemoveOwner(ctx, store, call, &next)
	case opSwapOwner:
		err = s.applySwapOwner(ctx, store, call, &next)
	case opChangeThreshold:
		err = s.applyChangeThreshold(call, &next)
	case opChangeMasterCopy:
		err = s.applyChangeMasterCopy(ctx, store, call, &next)
	case opSetFallbackHandler:
		err = s.applySetFallbackHandler(call, &next)
	case opSetGuard:
		err = s.applySetGuard(call, &next)
	case opEnableModule:
		err = s.applyEnableModule(call, &next)
	case opDisableModule:
		err = s.applyDisableModule(call, &next)
	case opExecution:
		err = s.applyExecution(ctx, store, call, &next)
	case opModuleExecution:
		// Module executions bypass the owner flow entirely and leave the
		// wallet configuration untouched, so no snapshot is taken.
		return s.applyModuleExecution(ctx, store, call)
	case opApproveHash:
		return s.applyApproveHash(ctx, store, call)
	case opSetup:
		// A setup against the zero address, which the lookup above rejects
		// before we ever get here.
		return false, nil
	default:
		logger.Warn(ctx, "cannot process call",
			"wallet", call.From,
			"call.id", call.ID,
			"function", call.Function,
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.storeStatus(ctx, store, next); err != nil {
		return false, err
	}

	return true, nil
}

// loadStatus fetches the wallet's current configuration, going to storage
// only on a cache miss. Cached values are read-only.
func (s *service) loadStatus(ctx context.Context, store Storage, wallet common.Address) (WalletStatus, error) {
	if status, ok := s.cache.get(wallet); ok {
		return status, nil
	}

	status, err := store.LatestStatus(ctx, wallet)
	if err != nil {
		return WalletStatus{}, err
	}

	s.cache.set(status)
	return status, nil
}

// storeStatus appends the historical snapshot and upserts the latest row as
// one pair, then refreshes the memo. The two writes always travel together
// inside the caller's unit of work.
func (s *service) storeStatus(ctx context.Context, store Storage, status WalletStatus) error {
	if err := store.AppendSnapshot(ctx, status); err != nil {
		return err
	}

	if err := store.UpsertLatest(ctx, status); err != nil {
		return err
	}

	s.cache.set(status)
	return nil
}

func (s *service) applySetup(ctx context.Context, store Storage, call DecodedCall) error {
	owners, err := call.Arguments.AddressList("_owners")
	if err != nil {
		return err
	}

	threshold, err := call.Arguments.Uint64("_threshold")
	if err != nil {
		return err
	}

	var fallbackHandler common.Address
	if call.Arguments.Has("fallbackHandler") {
		if fallbackHandler, err = call.Arguments.Address("fallbackHandler"); err != nil {
			return err
		}
	}

	err = store.EnsureWallet(ctx, WalletContract{
		Address:     call.From,
		TxHash:      call.TxHash,
		BlockNumber: call.BlockNumber,
		CreatedAt:   call.Timestamp,
	})
	if err != nil {
		return err
	}

	status := WalletStatus{
		Wallet:          call.From,
		Nonce:           0,
		Threshold:       threshold,
		Owners:          owners,
		MasterCopy:      call.To,
		FallbackHandler: fallbackHandler,
		CallID:          call.ID,
		BlockNumber:     call.BlockNumber,
		TxIndex:         call.TxIndex,
	}
	if err := s.storeStatus(ctx, store, status); err != nil {
		return err
	}

	logger.Info(ctx, "indexed new wallet",
		"wallet", call.From,
		"master_copy", call.To,
		"owners", len(owners),
		"threshold", threshold,
	)
	return nil
}

func (s *service) applyAddOwner(call DecodedCall, next *WalletStatus) error {
	owner, err := call.Arguments.Address("owner")
	if err != nil {
		return err
	}

	next.addOwner(owner)
	return applyOptionalThreshold(call, next)
}

func (s *service) applyRemoveOwner(ctx context.Context, store Storage, call DecodedCall, next *WalletStatus) error {
	owner, err := call.Arguments.Address("owner")
	if err != nil {
		return err
	}

	if err := next.removeOwner(owner); err != nil {
		return err
	}

	if err := applyOptionalThreshold(call, next); err != nil {
		return err
	}

	return s.cleanupOwner(ctx, store, call.From, next.Nonce, owner)
}

func (s *service) applySwapOwner(ctx context.Context, store Storage, call DecodedCall, next *WalletStatus) error {
	oldOwner, err := call.Arguments.Address("oldOwner")
	if err != nil {
		return err
	}

	newOwner, err := call.Arguments.Address("newOwner")
	if err != nil {
		return err
	}

	if err := next.swapOwner(oldOwner, newOwner); err != nil {
		return err
	}

	return s.cleanupOwner(ctx, store, call.From, next.Nonce, oldOwner)
}

// cleanupOwner erases everything a departing owner left behind: their
// confirmations on transactions the wallet has not executed yet, the
// delegates they granted on this wallet, and their off-chain message
// confirmations.
func (s *service) cleanupOwner(ctx context.Context, store Storage, wallet common.Address, nonce uint64, owner common.Address) error {
	confirmations, err := store.DeleteUnexecutedConfirmations(ctx, wallet, nonce, owner)
	if err != nil {
		return err
	}

	delegations, err := store.DeleteDelegations(ctx, wallet, owner)
	if err != nil {
		return err
	}

	messages, err := store.DeleteMessageConfirmations(ctx, owner)
	if err != nil {
		return err
	}

	if confirmations+delegations+messages > 0 {
		logger.Debug(ctx, "cleaned up after removed owner",
			"wallet", wallet,
			"owner", owner,
			"confirmations", confirmations,
			"delegations", delegations,
			"message_confirmations", messages,
		)
	}
	return nil
}

func (s *service) applyChangeThreshold(call DecodedCall, next *WalletStatus) error {
	threshold, err := call.Arguments.Uint64("_threshold")
	if err != nil {
		return err
	}

	next.Threshold = threshold
	return nil
}

func (s *service) applyChangeMasterCopy(ctx context.Context, store Storage, call DecodedCall, next *WalletStatus) error {
	masterCopy, err := call.Arguments.Address("_masterCopy")
	if err != nil {
		return err
	}

	oldVersion, oldKnown, err := s.lookupVersion(ctx, next.MasterCopy)
	if err != nil {
		return err
	}

	newVersion, newKnown, err := s.lookupVersion(ctx, masterCopy)
	if err != nil {
		return err
	}

	// Signatures collected for queued transactions are void once the digest
	// encoding changes, so those transactions can never execute. Only known
	// version pairs can prove that.
	if oldKnown && newKnown {
		breaking, err := safetx.BreaksSignatures(oldVersion, newVersion)
		if err != nil {
			return err
		}

		if breaking {
			deleted, err := store.DeleteQueuedTransactions(ctx, call.From)
			if err != nil {
				return err
			}

			logger.Info(ctx, "master copy change invalidated queued transactions",
				"wallet", call.From,
				"old_version", oldVersion,
				"new_version", newVersion,
				"deleted", deleted,
			)
		}
	}

	next.MasterCopy = masterCopy
	return nil
}

func (s *service) lookupVersion(ctx context.Context, masterCopy common.Address) (string, bool, error) {
	version, err := s.versions.VersionForMasterCopy(ctx, masterCopy)
	if errors.Is(err, ErrVersionNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return version, true, nil
}

func (s *service) applySetFallbackHandler(call DecodedCall, next *WalletStatus) error {
	handler, err := call.Arguments.Address("handler")
	if err != nil {
		return err
	}

	next.FallbackHandler = handler
	return nil
}

func (s *service) applySetGuard(call DecodedCall, next *WalletStatus) error {
	guard, err := call.Arguments.Address("guard")
	if err != nil {
		return err
	}

	// The zero address clears the guard, which the zero value already
	// represents.
	next.Guard = guard
	return nil
}

func (s *service) applyEnableModule(call DecodedCall, next *WalletStatus) error {
	module, err := call.Arguments.Address("module")
	if err != nil {
		return err
	}

	next.enableModule(module)
	return nil
}

func (s *service) applyDisableModule(call DecodedCall, next *WalletStatus) error {
	module, err := call.Arguments.Address("module")
	if err != nil {
		return err
	}

	return next.disableModule(module)
}

// applyModuleExecution records an execution a module pushed through the
// wallet. When the decoded call does not name the module, the initiator is
// the caller of the closest non-delegate ancestor trace.
func (s *service) applyModuleExecution(ctx context.Context, store Storage, call DecodedCall) (bool, error) {
	var module common.Address
	if call.Arguments.Has("module") {
		arg, err := call.Arguments.Address("module")
		if err != nil {
			return false, err
		}
		module = arg
	} else {
		prev, err := s.previousCall(ctx, call)
		if err != nil {
			return false, err
		}
		module = prev.From
	}

	to, err := call.Arguments.Address("to")
	if err != nil {
		return false, err
	}

	value, err := call.Arguments.BigInt("value")
	if err != nil {
		return false, err
	}

	data, err := call.Arguments.Bytes("data")
	if err != nil {
		return false, err
	}

	operation, err := call.Arguments.Uint64("operation")
	if err != nil {
		return false, err
	}

	err = store.StoreModuleTransaction(ctx, ModuleTransaction{
		CallID:    call.ID,
		Wallet:    call.From,
		Module:    module,
		To:        to,
		Value:     value,
		Data:      data,
		Operation: safetx.Operation(operation),
		Failed:    safetx.ModuleExecutionFailed(call.Logs, call.From, module),
		TxHash:    call.TxHash,
		Timestamp: call.Timestamp,
	})
	if err != nil {
		return false, err
	}

	if err := store.MarkRelevant(ctx, call.From, call.TxHash, call.Timestamp); err != nil {
		return false, err
	}

	userOps, err := s.userOps.ProcessUserOperations(ctx, call.From, call.TxHash, call.Logs)
	if err != nil {
		return false, err
	}
	if userOps > 0 {
		logger.Debug(ctx, "found user operations in module execution",
			"wallet", call.From,
			"tx_hash", call.TxHash,
			"user_operations", userOps,
		)
	}

	return true, nil
}

// applyApproveHash records an owner's on-chain approval of a transaction
// digest. Legacy approvals do not name the owner, so the initiator comes
// from the previous trace, same as module executions.
func (s *service) applyApproveHash(ctx context.Context, store Storage, call DecodedCall) (bool, error) {
	digest, err := call.Arguments.Hash("hashToApprove")
	if err != nil {
		return false, err
	}

	var owner common.Address
	if call.Arguments.Has("owner") {
		arg, err := call.Arguments.Address("owner")
		if err != nil {
			return false, err
		}
		owner = arg
	} else {
		prev, err := s.previousCall(ctx, call)
		if err != nil {
			return false, err
		}
		owner = prev.From
	}

	err = store.StoreApproval(ctx, Confirmation{
		TransactionHash: digest,
		Owner:           owner,
		Signature:       safesig.ApprovedHashBytes(owner),
		Kind:            safesig.KindApprovedHash,
		ExecTxHash:      call.TxHash,
		Timestamp:       call.Timestamp,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// previousCall resolves the ancestor trace a context-starved call depends
// on. A missing ancestor is the one condition the replay cannot work around:
// it means the trace source is inconsistent with the decoded data, so it is
// logged at the highest severity and surfaced as a batch-aborting error.
func (s *service) previousCall(ctx context.Context, call DecodedCall) (RawCall, error) {
	prev, err := s.traces.PreviousCall(ctx, call.TxHash, call.TracePath)
	if err != nil {
		if errors.Is(err, ErrPreviousTraceNotFound) {
			logger.Critical(ctx, "cannot find previous trace",
				"wallet", call.From,
				"call.id", call.ID,
				"tx_hash", call.TxHash,
				"trace_path", call.TracePath,
			)
		}
		return RawCall{}, fmt.Errorf("resolving previous trace for call %d: %w", call.ID, err)
	}

	return prev, nil
}

// applyExecution replays an owner-approved execution: it reconstructs the
// digest the owners signed, records the transaction and its confirmations,
// and advances the wallet nonce past the consumed one.
func (s *service) applyExecution(ctx context.Context, store Storage, call DecodedCall, next *WalletStatus) error {
	// Chains that emit rich events carry the nonce in the call itself; the
	// tracing path has to trust the replayed state instead.
	nonce := next.Nonce
	if call.Arguments.Has("nonce") {
		arg, err := call.Arguments.Uint64("nonce")
		if err != nil {
			return err
		}
		nonce = arg
	}

	var (
		baseGas *big.Int
		version string
		err     error
	)
	if call.Arguments.Has("baseGas") {
		if baseGas, err = call.Arguments.BigInt("baseGas"); err != nil {
			return err
		}

		var known bool
		if version, known, err = s.lookupVersion(ctx, next.MasterCopy); err != nil {
			return err
		} else if !known {
			version = safetx.DefaultVersion
		}
	} else {
		// Only pre-1.0.0 master copies still call this field dataGas.
		if baseGas, err = call.Arguments.BigInt("dataGas"); err != nil {
			return err
		}
		version = safetx.LegacyVersion
	}

	to, err := call.Arguments.Address("to")
	if err != nil {
		return err
	}

	value, err := call.Arguments.BigInt("value")
	if err != nil {
		return err
	}

	data, err := call.Arguments.Bytes("data")
	if err != nil {
		return err
	}

	operation, err := call.Arguments.Uint64("operation")
	if err != nil {
		return err
	}

	safeTxGas, err := call.Arguments.BigInt("safeTxGas")
	if err != nil {
		return err
	}

	gasPrice, err := call.Arguments.BigInt("gasPrice")
	if err != nil {
		return err
	}

	gasToken, err := call.Arguments.Address("gasToken")
	if err != nil {
		return err
	}

	refundReceiver, err := call.Arguments.Address("refundReceiver")
	if err != nil {
		return err
	}

	signatures, err := call.Arguments.Bytes("signatures")
	if err != nil {
		return err
	}

	digest, err := safetx.TxHash(call.From, s.chainID, version, safetx.TxParams{
		To:             to,
		Value:          value,
		Data:           data,
		Operation:      safetx.Operation(operation),
		SafeTxGas:      safeTxGas,
		BaseGas:        baseGas,
		GasPrice:       gasPrice,
		GasToken:       gasToken,
		RefundReceiver: refundReceiver,
		Nonce:          new(big.Int).SetUint64(nonce),
	})
	if err != nil {
		return err
	}

	failed := safetx.ExecutionFailed(call.Logs, digest)

	err = store.StoreExecution(ctx, MultisigTransaction{
		Hash:           digest,
		Wallet:         call.From,
		To:             to,
		Value:          value,
		Data:           data,
		Operation:      safetx.Operation(operation),
		SafeTxGas:      safeTxGas,
		BaseGas:        baseGas,
		GasPrice:       gasPrice,
		GasToken:       gasToken,
		RefundReceiver: refundReceiver,
		Nonce:          nonce,
		Signatures:     signatures,
		ExecTxHash:     call.TxHash,
		Failed:         failed,
		Trusted:        true,
		Timestamp:      call.Timestamp,
	})
	if err != nil {
		return err
	}

	parsed, err := safesig.Parse(signatures, digest)
	if err != nil {
		return fmt.Errorf("%w: signatures: %v", ErrInvalidArgument, err)
	}

	for _, signature := range parsed {
		err = store.StoreConfirmation(ctx, Confirmation{
			TransactionHash: digest,
			Owner:           signature.Owner,
			Signature:       signature.Export(),
			Kind:            signature.Kind,
			ExecTxHash:      call.TxHash,
			Timestamp:       call.Timestamp,
		})
		if err != nil {
			return err
		}
	}

	if err := store.MarkRelevant(ctx, call.From, call.TxHash, call.Timestamp); err != nil {
		return err
	}

	// A mined execution consumes its nonce no matter how it went, so the
	// replayed state moves past it unconditionally.
	next.Nonce = nonce + 1
	return nil
}

func applyOptionalThreshold(call DecodedCall, next *WalletStatus) error {
	if !call.Arguments.Has("_threshold") {
		return nil
	}

	threshold, err := call.Arguments.Uint64("_threshold")
	if err != nil {
		return err
	}

	// A zero threshold in the decoded arguments means "keep the current
	// one", matching the contract's sentinel.
	if threshold > 0 {
		next.Threshold = threshold
	}
	return nil
}
