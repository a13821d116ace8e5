package txproc

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrOwnerNotFound is returned when a call removes or swaps an owner the
	// wallet does not have. The batch absorbs it as a per-call failure.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrModuleNotFound is returned when a call disables a module the wallet
	// never enabled. The batch absorbs it as a per-call failure.
	ErrModuleNotFound = errors.New("module not found")
)

// WalletStatus is one wallet configuration: the owner set, the execution
// threshold, the next execution nonce, and the contract wiring (master copy,
// fallback handler, guard, enabled modules). The same shape serves both the
// append-only snapshot history and the mutable latest row.
//
// CallID, BlockNumber and TxIndex record the decoded call that produced the
// configuration and order snapshots within a nonce. A zero Guard means no
// guard is set.
type WalletStatus struct {
	Wallet          common.Address
	Nonce           uint64
	Threshold       uint64
	Owners          []common.Address
	MasterCopy      common.Address
	FallbackHandler common.Address
	Guard           common.Address
	Modules         []common.Address

	CallID      uint64
	BlockNumber uint64
	TxIndex     uint64
}

// clone returns a copy safe to mutate without touching the cached original.
func (s WalletStatus) clone() WalletStatus {
	out := s
	out.Owners = slices.Clone(s.Owners)
	out.Modules = slices.Clone(s.Modules)

	return out
}

// addOwner puts the new owner at the head of the list, which is where the
// contract's linked list inserts it.
func (s *WalletStatus) addOwner(owner common.Address) {
	s.Owners = append([]common.Address{owner}, s.Owners...)
}

func (s *WalletStatus) removeOwner(owner common.Address) error {
	for i, current := range s.Owners {
		if current == owner {
			s.Owners = append(s.Owners[:i], s.Owners[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrOwnerNotFound, owner)
}

// swapOwner replaces oldOwner in place, preserving its list position.
func (s *WalletStatus) swapOwner(oldOwner, newOwner common.Address) error {
	for i, current := range s.Owners {
		if current == oldOwner {
			s.Owners[i] = newOwner
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrOwnerNotFound, oldOwner)
}

func (s *WalletStatus) enableModule(module common.Address) {
	s.Modules = append(s.Modules, module)
}

func (s *WalletStatus) disableModule(module common.Address) error {
	for i, current := range s.Modules {
		if current == module {
			s.Modules = append(s.Modules[:i], s.Modules[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrModuleNotFound, module)
}

// newerThan reports whether this status was produced by a chain position
// after the given call, which means the caller is replaying history.
func (s WalletStatus) newerThan(call DecodedCall) bool {
	if call.BlockNumber != s.BlockNumber {
		return call.BlockNumber < s.BlockNumber
	}

	if call.TxIndex != s.TxIndex {
		return call.TxIndex < s.TxIndex
	}

	return call.ID < s.CallID
}
