package postgres

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/safetx"
	"github.com/gabapcia/safewatch/internal/txproc"
)

// Addresses and hashes are stored as their checksummed hex form. Unbounded
// integers are stored as decimal strings, address lists and trace metadata as
// JSON text. An empty exec_tx_hash means the transaction has not executed.
type (
	walletContract struct {
		Address     string `gorm:"primaryKey;size:42"`
		TxHash      string `gorm:"size:66"`
		BlockNumber uint64
		CreatedAt   time.Time
	}

	walletStatusLatest struct {
		Wallet          string `gorm:"primaryKey;size:42"`
		Nonce           uint64
		Threshold       uint64
		Owners          string `gorm:"type:text"`
		MasterCopy      string `gorm:"size:42"`
		FallbackHandler string `gorm:"size:42"`
		Guard           string `gorm:"size:42"`
		Modules         string `gorm:"type:text"`
		CallID          uint64
		BlockNumber     uint64
		TxIndex         uint64
	}

	walletStatusSnapshot struct {
		CallID          uint64 `gorm:"primaryKey;autoIncrement:false"`
		Wallet          string `gorm:"size:42;index"`
		Nonce           uint64
		Threshold       uint64
		Owners          string `gorm:"type:text"`
		MasterCopy      string `gorm:"size:42"`
		FallbackHandler string `gorm:"size:42"`
		Guard           string `gorm:"size:42"`
		Modules         string `gorm:"type:text"`
		BlockNumber     uint64
		TxIndex         uint64
	}

	multisigTransaction struct {
		Hash           string `gorm:"primaryKey;size:66"`
		Wallet         string `gorm:"size:42;index:idx_multisig_wallet_nonce"`
		To             string `gorm:"size:42"`
		Value          string `gorm:"size:78"`
		Data           []byte
		Operation      uint8
		SafeTxGas      string `gorm:"size:78"`
		BaseGas        string `gorm:"size:78"`
		GasPrice       string `gorm:"size:78"`
		GasToken       string `gorm:"size:42"`
		RefundReceiver string `gorm:"size:42"`
		Nonce          uint64 `gorm:"index:idx_multisig_wallet_nonce"`
		Signatures     []byte
		ExecTxHash     string `gorm:"size:66"`
		Failed         bool
		Trusted        bool
		Timestamp      time.Time
	}

	confirmation struct {
		TransactionHash string `gorm:"primaryKey;size:66"`
		Owner           string `gorm:"primaryKey;size:42;index"`
		Signature       []byte
		Kind            uint8
		ExecTxHash      string `gorm:"size:66"`
		Timestamp       time.Time
	}

	moduleTransaction struct {
		CallID    uint64 `gorm:"primaryKey;autoIncrement:false"`
		Wallet    string `gorm:"size:42;index"`
		Module    string `gorm:"size:42"`
		To        string `gorm:"size:42"`
		Value     string `gorm:"size:78"`
		Data      []byte
		Operation uint8
		Failed    bool
		TxHash    string `gorm:"size:66"`
		Timestamp time.Time
	}

	relevantTransaction struct {
		Wallet    string `gorm:"primaryKey;size:42"`
		TxHash    string `gorm:"primaryKey;size:66"`
		Timestamp time.Time
	}

	delegation struct {
		ID        uint64 `gorm:"primaryKey"`
		Wallet    string `gorm:"size:42;index:idx_delegations_wallet_delegator"`
		Delegator string `gorm:"size:42;index:idx_delegations_wallet_delegator"`
		Delegate  string `gorm:"size:42"`
		Label     string `gorm:"size:64"`
		CreatedAt time.Time
	}

	messageConfirmation struct {
		MessageHash string `gorm:"primaryKey;size:66"`
		Owner       string `gorm:"primaryKey;size:42;index"`
		Signature   []byte
		CreatedAt   time.Time
	}

	decodedCall struct {
		ID           uint64 `gorm:"primaryKey;autoIncrement:false"`
		TxHash       string `gorm:"size:66;index"`
		BlockNumber  uint64
		TxIndex      uint64
		Timestamp    time.Time
		TracePath    string `gorm:"type:text"`
		Wallet       string `gorm:"size:42;index"`
		Target       string `gorm:"size:42"`
		Value        string `gorm:"size:78"`
		GasUsed      uint64
		FunctionName string `gorm:"size:64"`
		Arguments    string `gorm:"type:text"`
		Logs         string `gorm:"type:text"`
		Processed    bool   `gorm:"index"`
	}

	masterCopy struct {
		Address      string `gorm:"primaryKey;size:42"`
		Version      string `gorm:"size:32"`
		L2           bool   `gorm:"column:l2"`
		RegisteredAt time.Time
	}
)

func allModels() []any {
	return []any{
		&walletContract{},
		&walletStatusLatest{},
		&walletStatusSnapshot{},
		&multisigTransaction{},
		&confirmation{},
		&moduleTransaction{},
		&relevantTransaction{},
		&delegation{},
		&messageConfirmation{},
		&decodedCall{},
		&masterCopy{},
	}
}

// hashColumn keeps the zero hash out of the database, so an empty string can
// stand for "not set" in queries.
func hashColumn(hash common.Hash) string {
	if hash == (common.Hash{}) {
		return ""
	}

	return hash.Hex()
}

func bigColumn(value *big.Int) string {
	if value == nil {
		return "0"
	}

	return value.String()
}

func bigFromColumn(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed integer column value %q", raw)
	}

	return value, nil
}

func addressesColumn(addresses []common.Address) (string, error) {
	hexes := make([]string, len(addresses))
	for i, address := range addresses {
		hexes[i] = address.Hex()
	}

	encoded, err := json.Marshal(hexes)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

func addressesFromColumn(raw string) ([]common.Address, error) {
	if raw == "" {
		return nil, nil
	}

	var hexes []string
	if err := json.Unmarshal([]byte(raw), &hexes); err != nil {
		return nil, err
	}

	addresses := make([]common.Address, len(hexes))
	for i, hex := range hexes {
		addresses[i] = common.HexToAddress(hex)
	}

	return addresses, nil
}

func tracePathColumn(path []int64) (string, error) {
	encoded, err := json.Marshal(path)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

func tracePathFromColumn(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}

	var path []int64
	if err := json.Unmarshal([]byte(raw), &path); err != nil {
		return nil, err
	}

	return path, nil
}

func logsFromColumn(raw string) ([]safetx.Log, error) {
	if raw == "" {
		return nil, nil
	}

	var logs []safetx.Log
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

// argumentsFromColumn decodes with UseNumber so numeric arguments come back
// as json.Number, the form the argument getters expect.
func argumentsFromColumn(raw string) (txproc.Arguments, error) {
	if raw == "" {
		return txproc.Arguments{}, nil
	}

	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var arguments txproc.Arguments
	if err := decoder.Decode(&arguments); err != nil {
		return nil, err
	}

	return arguments, nil
}

func statusToLatest(status txproc.WalletStatus) (walletStatusLatest, error) {
	owners, err := addressesColumn(status.Owners)
	if err != nil {
		return walletStatusLatest{}, err
	}

	modules, err := addressesColumn(status.Modules)
	if err != nil {
		return walletStatusLatest{}, err
	}

	return walletStatusLatest{
		Wallet:          status.Wallet.Hex(),
		Nonce:           status.Nonce,
		Threshold:       status.Threshold,
		Owners:          owners,
		MasterCopy:      status.MasterCopy.Hex(),
		FallbackHandler: status.FallbackHandler.Hex(),
		Guard:           status.Guard.Hex(),
		Modules:         modules,
		CallID:          status.CallID,
		BlockNumber:     status.BlockNumber,
		TxIndex:         status.TxIndex,
	}, nil
}

func statusToSnapshot(status txproc.WalletStatus) (walletStatusSnapshot, error) {
	owners, err := addressesColumn(status.Owners)
	if err != nil {
		return walletStatusSnapshot{}, err
	}

	modules, err := addressesColumn(status.Modules)
	if err != nil {
		return walletStatusSnapshot{}, err
	}

	return walletStatusSnapshot{
		CallID:          status.CallID,
		Wallet:          status.Wallet.Hex(),
		Nonce:           status.Nonce,
		Threshold:       status.Threshold,
		Owners:          owners,
		MasterCopy:      status.MasterCopy.Hex(),
		FallbackHandler: status.FallbackHandler.Hex(),
		Guard:           status.Guard.Hex(),
		Modules:         modules,
		BlockNumber:     status.BlockNumber,
		TxIndex:         status.TxIndex,
	}, nil
}

func statusFromLatest(model walletStatusLatest) (txproc.WalletStatus, error) {
	owners, err := addressesFromColumn(model.Owners)
	if err != nil {
		return txproc.WalletStatus{}, err
	}

	modules, err := addressesFromColumn(model.Modules)
	if err != nil {
		return txproc.WalletStatus{}, err
	}

	return txproc.WalletStatus{
		Wallet:          common.HexToAddress(model.Wallet),
		Nonce:           model.Nonce,
		Threshold:       model.Threshold,
		Owners:          owners,
		MasterCopy:      common.HexToAddress(model.MasterCopy),
		FallbackHandler: common.HexToAddress(model.FallbackHandler),
		Guard:           common.HexToAddress(model.Guard),
		Modules:         modules,
		CallID:          model.CallID,
		BlockNumber:     model.BlockNumber,
		TxIndex:         model.TxIndex,
	}, nil
}

func statusFromSnapshot(model walletStatusSnapshot) (txproc.WalletStatus, error) {
	owners, err := addressesFromColumn(model.Owners)
	if err != nil {
		return txproc.WalletStatus{}, err
	}

	modules, err := addressesFromColumn(model.Modules)
	if err != nil {
		return txproc.WalletStatus{}, err
	}

	return txproc.WalletStatus{
		Wallet:          common.HexToAddress(model.Wallet),
		Nonce:           model.Nonce,
		Threshold:       model.Threshold,
		Owners:          owners,
		MasterCopy:      common.HexToAddress(model.MasterCopy),
		FallbackHandler: common.HexToAddress(model.FallbackHandler),
		Guard:           common.HexToAddress(model.Guard),
		Modules:         modules,
		CallID:          model.CallID,
		BlockNumber:     model.BlockNumber,
		TxIndex:         model.TxIndex,
	}, nil
}

func executionToModel(tx txproc.MultisigTransaction) multisigTransaction {
	return multisigTransaction{
		Hash:           tx.Hash.Hex(),
		Wallet:         tx.Wallet.Hex(),
		To:             tx.To.Hex(),
		Value:          bigColumn(tx.Value),
		Data:           tx.Data,
		Operation:      uint8(tx.Operation),
		SafeTxGas:      bigColumn(tx.SafeTxGas),
		BaseGas:        bigColumn(tx.BaseGas),
		GasPrice:       bigColumn(tx.GasPrice),
		GasToken:       tx.GasToken.Hex(),
		RefundReceiver: tx.RefundReceiver.Hex(),
		Nonce:          tx.Nonce,
		Signatures:     tx.Signatures,
		ExecTxHash:     hashColumn(tx.ExecTxHash),
		Failed:         tx.Failed,
		Trusted:        tx.Trusted,
		Timestamp:      tx.Timestamp,
	}
}

func confirmationToModel(conf txproc.Confirmation) confirmation {
	return confirmation{
		TransactionHash: conf.TransactionHash.Hex(),
		Owner:           conf.Owner.Hex(),
		Signature:       conf.Signature,
		Kind:            uint8(conf.Kind),
		ExecTxHash:      hashColumn(conf.ExecTxHash),
		Timestamp:       conf.Timestamp,
	}
}

func moduleTransactionToModel(tx txproc.ModuleTransaction) moduleTransaction {
	return moduleTransaction{
		CallID:    tx.CallID,
		Wallet:    tx.Wallet.Hex(),
		Module:    tx.Module.Hex(),
		To:        tx.To.Hex(),
		Value:     bigColumn(tx.Value),
		Data:      tx.Data,
		Operation: uint8(tx.Operation),
		Failed:    tx.Failed,
		TxHash:    tx.TxHash.Hex(),
		Timestamp: tx.Timestamp,
	}
}

func callFromModel(model decodedCall) (txproc.DecodedCall, error) {
	tracePath, err := tracePathFromColumn(model.TracePath)
	if err != nil {
		return txproc.DecodedCall{}, err
	}

	value, err := bigFromColumn(model.Value)
	if err != nil {
		return txproc.DecodedCall{}, err
	}

	arguments, err := argumentsFromColumn(model.Arguments)
	if err != nil {
		return txproc.DecodedCall{}, err
	}

	logs, err := logsFromColumn(model.Logs)
	if err != nil {
		return txproc.DecodedCall{}, err
	}

	return txproc.DecodedCall{
		ID:          model.ID,
		TxHash:      common.HexToHash(model.TxHash),
		BlockNumber: model.BlockNumber,
		TxIndex:     model.TxIndex,
		Timestamp:   model.Timestamp,
		TracePath:   tracePath,
		From:        common.HexToAddress(model.Wallet),
		To:          common.HexToAddress(model.Target),
		Value:       value,
		GasUsed:     model.GasUsed,
		Function:    model.FunctionName,
		Arguments:   arguments,
		Logs:        logs,
	}, nil
}
