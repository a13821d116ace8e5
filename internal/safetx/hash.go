// Package safetx holds the pieces of the Safe contract protocol the indexer
// depends on: the EIP-712 digest owners sign, the master copy version
// boundaries that invalidate those signatures, and the receipt events that
// mark failed executions.
package safetx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TxParams carries the fields that make up the signed payload of a multisig
// transaction. Nil big integers are encoded as zero.
type TxParams struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int // reported as dataGas by master copies older than 1.0.0
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// TxHash computes the EIP-712 digest a wallet's owners sign to approve a
// multisig transaction.
//
// The encoding depends on the wallet's master copy version: contracts older
// than 1.0.0 name the gas overhead field dataGas instead of baseGas, and
// contracts older than 1.3.0 leave the chain id out of the signing domain.
// Versions are normalized with baseVersion before comparison.
func TxHash(wallet common.Address, chainID int64, version string, tx TxParams) (common.Hash, error) {
	contractVersion, err := baseVersion(version)
	if err != nil {
		return common.Hash{}, err
	}

	baseGasName := "baseGas"
	if contractVersion.LessThan(baseGasRenameVersion) {
		baseGasName = "dataGas"
	}

	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "verifyingContract", Type: "address"},
		},
		"SafeTx": {
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "data", Type: "bytes"},
			{Name: "operation", Type: "uint8"},
			{Name: "safeTxGas", Type: "uint256"},
			{Name: baseGasName, Type: "uint256"},
			{Name: "gasPrice", Type: "uint256"},
			{Name: "gasToken", Type: "address"},
			{Name: "refundReceiver", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		},
	}

	domain := apitypes.TypedDataDomain{VerifyingContract: wallet.Hex()}
	if !contractVersion.LessThan(chainIDDomainVersion) {
		types["EIP712Domain"] = []apitypes.Type{
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
		domain.ChainId = math.NewHexOrDecimal256(chainID)
	}

	message := apitypes.TypedDataMessage{
		"to":             tx.To.Hex(),
		"value":          hexOrZero(tx.Value),
		"data":           bytesOrEmpty(tx.Data),
		"operation":      math.NewHexOrDecimal256(int64(tx.Operation)),
		"safeTxGas":      hexOrZero(tx.SafeTxGas),
		baseGasName:      hexOrZero(tx.BaseGas),
		"gasPrice":       hexOrZero(tx.GasPrice),
		"gasToken":       tx.GasToken.Hex(),
		"refundReceiver": tx.RefundReceiver.Hex(),
		"nonce":          hexOrZero(tx.Nonce),
	}

	digest, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types:       types,
		PrimaryType: "SafeTx",
		Domain:      domain,
		Message:     message,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing multisig transaction: %w", err)
	}

	return common.BytesToHash(digest), nil
}

func hexOrZero(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return math.NewHexOrDecimal256(0)
	}

	return (*math.HexOrDecimal256)(v)
}

func bytesOrEmpty(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
