package txproc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/gabapcia/safewatch/internal/safetx"
)

type traceSourceMock struct{ mock.Mock }

func (m *traceSourceMock) PreviousCall(ctx context.Context, txHash common.Hash, path []int64) (RawCall, error) {
	args := m.Called(ctx, txHash, path)
	return args.Get(0).(RawCall), args.Error(1)
}

type versionRegistryMock struct{ mock.Mock }

func (m *versionRegistryMock) VersionForMasterCopy(ctx context.Context, masterCopy common.Address) (string, error) {
	args := m.Called(ctx, masterCopy)
	return args.String(0), args.Error(1)
}

type denylistMock struct{ mock.Mock }

func (m *denylistMock) FilterBanned(ctx context.Context, wallets []common.Address) ([]common.Address, error) {
	args := m.Called(ctx, wallets)

	banned, _ := args.Get(0).([]common.Address)
	return banned, args.Error(1)
}

type userOpScannerMock struct{ mock.Mock }

func (m *userOpScannerMock) ProcessUserOperations(ctx context.Context, wallet common.Address, txHash common.Hash, logs []safetx.Log) (int, error) {
	args := m.Called(ctx, wallet, txHash, logs)
	return args.Int(0), args.Error(1)
}

// matchAddresses matches an address slice regardless of its order, since
// sets do not guarantee one.
func matchAddresses(expected ...common.Address) any {
	return mock.MatchedBy(func(actual []common.Address) bool {
		if len(actual) != len(expected) {
			return false
		}

		want := make(map[common.Address]bool, len(expected))
		for _, address := range expected {
			want[address] = true
		}

		for _, address := range actual {
			if !want[address] {
				return false
			}
		}

		return true
	})
}
