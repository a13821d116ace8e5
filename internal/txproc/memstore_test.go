package txproc

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// memStore is an in-memory Storage for processor tests. Transact snapshots
// the whole state and restores it when fn fails, which nests the way real
// transactions and savepoints do. Methods listed in failures return the
// injected error instead of doing their work.
type memStore struct {
	latest        map[common.Address]WalletStatus
	snapshots     map[uint64]WalletStatus
	wallets       map[common.Address]WalletContract
	transactions  map[common.Hash]MultisigTransaction
	confirmations map[confirmationKey]Confirmation
	moduleTxs     map[uint64]ModuleTransaction
	relevant      map[relevantKey]time.Time
	delegations   []delegationRow
	messageConfs  []messageConfirmationRow
	processed     map[uint64]bool

	failures map[string]error
}

type confirmationKey struct {
	hash  common.Hash
	owner common.Address
}

type relevantKey struct {
	wallet common.Address
	hash   common.Hash
}

type delegationRow struct {
	wallet    common.Address
	delegator common.Address
	delegate  common.Address
}

type messageConfirmationRow struct {
	owner   common.Address
	message common.Hash
}

var _ Storage = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		latest:        make(map[common.Address]WalletStatus),
		snapshots:     make(map[uint64]WalletStatus),
		wallets:       make(map[common.Address]WalletContract),
		transactions:  make(map[common.Hash]MultisigTransaction),
		confirmations: make(map[confirmationKey]Confirmation),
		moduleTxs:     make(map[uint64]ModuleTransaction),
		relevant:      make(map[relevantKey]time.Time),
		processed:     make(map[uint64]bool),
		failures:      make(map[string]error),
	}
}

type memState struct {
	latest        map[common.Address]WalletStatus
	snapshots     map[uint64]WalletStatus
	wallets       map[common.Address]WalletContract
	transactions  map[common.Hash]MultisigTransaction
	confirmations map[confirmationKey]Confirmation
	moduleTxs     map[uint64]ModuleTransaction
	relevant      map[relevantKey]time.Time
	delegations   []delegationRow
	messageConfs  []messageConfirmationRow
	processed     map[uint64]bool
}

func (m *memStore) state() memState {
	return memState{
		latest:        maps.Clone(m.latest),
		snapshots:     maps.Clone(m.snapshots),
		wallets:       maps.Clone(m.wallets),
		transactions:  maps.Clone(m.transactions),
		confirmations: maps.Clone(m.confirmations),
		moduleTxs:     maps.Clone(m.moduleTxs),
		relevant:      maps.Clone(m.relevant),
		delegations:   slices.Clone(m.delegations),
		messageConfs:  slices.Clone(m.messageConfs),
		processed:     maps.Clone(m.processed),
	}
}

func (m *memStore) restore(s memState) {
	m.latest = s.latest
	m.snapshots = s.snapshots
	m.wallets = s.wallets
	m.transactions = s.transactions
	m.confirmations = s.confirmations
	m.moduleTxs = s.moduleTxs
	m.relevant = s.relevant
	m.delegations = s.delegations
	m.messageConfs = s.messageConfs
	m.processed = s.processed
}

func (m *memStore) Transact(_ context.Context, fn func(Storage) error) error {
	if err := m.failures["Transact"]; err != nil {
		return err
	}

	saved := m.state()
	if err := fn(m); err != nil {
		m.restore(saved)
		return err
	}

	return nil
}

func (m *memStore) LatestStatus(_ context.Context, wallet common.Address) (WalletStatus, error) {
	if err := m.failures["LatestStatus"]; err != nil {
		return WalletStatus{}, err
	}

	status, ok := m.latest[wallet]
	if !ok {
		return WalletStatus{}, ErrStatusNotFound
	}

	return status, nil
}

func (m *memStore) AppendSnapshot(_ context.Context, status WalletStatus) error {
	if err := m.failures["AppendSnapshot"]; err != nil {
		return err
	}

	if _, ok := m.snapshots[status.CallID]; !ok {
		m.snapshots[status.CallID] = status
	}

	return nil
}

func (m *memStore) UpsertLatest(_ context.Context, status WalletStatus) error {
	if err := m.failures["UpsertLatest"]; err != nil {
		return err
	}

	m.latest[status.Wallet] = status
	return nil
}

func (m *memStore) EnsureWallet(_ context.Context, wallet WalletContract) error {
	if err := m.failures["EnsureWallet"]; err != nil {
		return err
	}

	if _, ok := m.wallets[wallet.Address]; !ok {
		m.wallets[wallet.Address] = wallet
	}

	return nil
}

func (m *memStore) StoreExecution(_ context.Context, tx MultisigTransaction) error {
	if err := m.failures["StoreExecution"]; err != nil {
		return err
	}

	existing, ok := m.transactions[tx.Hash]
	if !ok {
		m.transactions[tx.Hash] = tx
		return nil
	}

	if existing.ExecTxHash == (common.Hash{}) {
		existing.ExecTxHash = tx.ExecTxHash
		existing.Failed = tx.Failed
		existing.Signatures = tx.Signatures
		existing.Trusted = tx.Trusted
		m.transactions[tx.Hash] = existing
	}

	return nil
}

func (m *memStore) DeleteQueuedTransactions(_ context.Context, wallet common.Address) (int64, error) {
	if err := m.failures["DeleteQueuedTransactions"]; err != nil {
		return 0, err
	}

	maxExecuted := int64(-1)
	for _, tx := range m.transactions {
		if tx.Wallet == wallet && tx.ExecTxHash != (common.Hash{}) && int64(tx.Nonce) > maxExecuted {
			maxExecuted = int64(tx.Nonce)
		}
	}

	var deleted int64
	for hash, tx := range m.transactions {
		if tx.Wallet == wallet && tx.ExecTxHash == (common.Hash{}) && int64(tx.Nonce) > maxExecuted {
			delete(m.transactions, hash)
			deleted++
		}
	}

	return deleted, nil
}

func (m *memStore) StoreModuleTransaction(_ context.Context, tx ModuleTransaction) error {
	if err := m.failures["StoreModuleTransaction"]; err != nil {
		return err
	}

	if _, ok := m.moduleTxs[tx.CallID]; !ok {
		m.moduleTxs[tx.CallID] = tx
	}

	return nil
}

func (m *memStore) MarkRelevant(_ context.Context, wallet common.Address, txHash common.Hash, at time.Time) error {
	if err := m.failures["MarkRelevant"]; err != nil {
		return err
	}

	m.relevant[relevantKey{wallet: wallet, hash: txHash}] = at
	return nil
}

func (m *memStore) StoreConfirmation(_ context.Context, confirmation Confirmation) error {
	if err := m.failures["StoreConfirmation"]; err != nil {
		return err
	}

	key := confirmationKey{hash: confirmation.TransactionHash, owner: confirmation.Owner}
	existing, ok := m.confirmations[key]
	if !ok {
		m.confirmations[key] = confirmation
		return nil
	}

	if !bytes.Equal(existing.Signature, confirmation.Signature) {
		existing.Signature = confirmation.Signature
		existing.Kind = confirmation.Kind
		m.confirmations[key] = existing
	}

	return nil
}

func (m *memStore) StoreApproval(_ context.Context, confirmation Confirmation) error {
	if err := m.failures["StoreApproval"]; err != nil {
		return err
	}

	key := confirmationKey{hash: confirmation.TransactionHash, owner: confirmation.Owner}
	existing, ok := m.confirmations[key]
	if !ok {
		m.confirmations[key] = confirmation
		return nil
	}

	if existing.ExecTxHash == (common.Hash{}) {
		existing.ExecTxHash = confirmation.ExecTxHash
		m.confirmations[key] = existing
	}

	return nil
}

func (m *memStore) DeleteUnexecutedConfirmations(_ context.Context, wallet common.Address, nonce uint64, owner common.Address) (int64, error) {
	if err := m.failures["DeleteUnexecutedConfirmations"]; err != nil {
		return 0, err
	}

	var deleted int64
	for key, confirmation := range m.confirmations {
		if confirmation.Owner != owner {
			continue
		}

		tx, ok := m.transactions[confirmation.TransactionHash]
		if !ok || tx.Wallet != wallet {
			continue
		}

		if tx.ExecTxHash == (common.Hash{}) && tx.Nonce >= nonce {
			delete(m.confirmations, key)
			deleted++
		}
	}

	return deleted, nil
}

func (m *memStore) DeleteDelegations(_ context.Context, wallet common.Address, delegator common.Address) (int64, error) {
	if err := m.failures["DeleteDelegations"]; err != nil {
		return 0, err
	}

	var (
		kept    []delegationRow
		deleted int64
	)
	for _, row := range m.delegations {
		if row.wallet == wallet && row.delegator == delegator {
			deleted++
			continue
		}
		kept = append(kept, row)
	}

	m.delegations = kept
	return deleted, nil
}

func (m *memStore) DeleteMessageConfirmations(_ context.Context, owner common.Address) (int64, error) {
	if err := m.failures["DeleteMessageConfirmations"]; err != nil {
		return 0, err
	}

	var (
		kept    []messageConfirmationRow
		deleted int64
	)
	for _, row := range m.messageConfs {
		if row.owner == owner {
			deleted++
			continue
		}
		kept = append(kept, row)
	}

	m.messageConfs = kept
	return deleted, nil
}

func (m *memStore) PendingCalls(_ context.Context, limit int) ([]DecodedCall, error) {
	if err := m.failures["PendingCalls"]; err != nil {
		return nil, err
	}

	return nil, nil
}

func (m *memStore) PendingCallsForWallet(_ context.Context, wallet common.Address) ([]DecodedCall, error) {
	if err := m.failures["PendingCallsForWallet"]; err != nil {
		return nil, err
	}

	return nil, nil
}

func (m *memStore) MarkProcessed(_ context.Context, callIDs []uint64) error {
	if err := m.failures["MarkProcessed"]; err != nil {
		return err
	}

	for _, id := range callIDs {
		m.processed[id] = true
	}

	return nil
}
