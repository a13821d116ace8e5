package safetx

import "fmt"

// Operation is the call kind a multisig transaction asks the wallet to perform.
// Its numeric values follow the contract's enum and are part of the signed payload.
type Operation uint8

const (
	OperationCall Operation = iota
	OperationDelegateCall
	OperationCreate
)

func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "call"
	case OperationDelegateCall:
		return "delegatecall"
	case OperationCreate:
		return "create"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}
