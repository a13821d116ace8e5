package txproc

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabapcia/safewatch/internal/pkg/logger"
	"github.com/gabapcia/safewatch/internal/safesig"
	"github.com/gabapcia/safewatch/internal/safetx"
)

func init() {
	// Initialize logger for tests to prevent nil pointer dereference
	_ = logger.Init(logger.WithLevel("error"))
}

const testChainID = int64(1)

var (
	testWallet  = common.HexToAddress("0x4cb09344de5bcc97ae028ba3ce0f3958bde7b569")
	otherWallet = common.HexToAddress("0x89208e53b2b220929a305aa6a043ba3a314e2a8a")
	moduleAddr  = common.HexToAddress("0x2f2446aac6263dcf09f7e23ae0d473e9537a1974")
	ownerD      = common.HexToAddress("0x00000000000000000000000000000000000000dd")

	mcCurrent = common.HexToAddress("0xd9db270c1b5e3bd161e8c8503c55ceabee709552")
	mcOld     = common.HexToAddress("0x34cfac646f301356faa8b21e94227e3583fe3f5f")
	mcLegacy  = common.HexToAddress("0xac6072986e985aabe7804695ec2d8970cf7541a2")
)

func newProcessor(store *memStore, opts ...Option) (*service, *traceSourceMock, *versionRegistryMock) {
	traces := new(traceSourceMock)
	versions := new(versionRegistryMock)

	return New(testChainID, store, traces, versions, opts...), traces, versions
}

func newCall(id uint64, function string, args Arguments) DecodedCall {
	return DecodedCall{
		ID:          id,
		TxHash:      common.BigToHash(big.NewInt(int64(id) + 1_000)),
		BlockNumber: 100 + id,
		Timestamp:   time.Unix(1_670_000_000+int64(id), 0).UTC(),
		From:        testWallet,
		To:          mcCurrent,
		GasUsed:     75_000,
		Function:    function,
		Arguments:   args,
	}
}

func setupArgs(threshold uint64, owners ...common.Address) Arguments {
	list := make([]any, len(owners))
	for i, owner := range owners {
		list[i] = owner.Hex()
	}

	return Arguments{
		"_owners":    list,
		"_threshold": json.Number(strconv.FormatUint(threshold, 10)),
	}
}

func seedWallet(t *testing.T, svc *service, threshold uint64, owners ...common.Address) {
	t.Helper()

	applied, err := svc.Process(t.Context(), newCall(1, "setup", setupArgs(threshold, owners...)))
	require.NoError(t, err)
	require.True(t, applied)
}

func newSigner(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signDigest(t *testing.T, key *ecdsa.PrivateKey, digest common.Hash) []byte {
	t.Helper()

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	chunk := make([]byte, 65)
	copy(chunk, sig[:64])
	chunk[64] = sig[64] + 27

	return chunk
}

func execArgs(to common.Address, value *big.Int, signatures []byte) Arguments {
	return Arguments{
		"to":             to.Hex(),
		"value":          value,
		"data":           "0x",
		"operation":      json.Number("0"),
		"safeTxGas":      json.Number("0"),
		"baseGas":        json.Number("0"),
		"gasPrice":       json.Number("0"),
		"gasToken":       (common.Address{}).Hex(),
		"refundReceiver": (common.Address{}).Hex(),
		"signatures":     signatures,
	}
}

func execParams(to common.Address, value *big.Int, nonce uint64) safetx.TxParams {
	return safetx.TxParams{
		To:    to,
		Value: value,
		Nonce: new(big.Int).SetUint64(nonce),
	}
}

func moduleFailureTopic() common.Hash {
	return crypto.Keccak256Hash([]byte("ExecutionFromModuleFailure(address)"))
}

func executionFailureTopic() common.Hash {
	return crypto.Keccak256Hash([]byte("ExecutionFailure(bytes32,uint256)"))
}

func TestProcess(t *testing.T) {
	t.Run("call below the gas floor", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		call := newCall(1, "setup", setupArgs(1, ownerA))
		call.GasUsed = 500

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)

		assert.Empty(t, store.wallets)
		assert.Empty(t, store.latest)
		assert.True(t, store.processed[call.ID])
	})

	t.Run("configured gas floor", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store, WithGasFloor(400))

		call := newCall(1, "setup", setupArgs(1, ownerA))
		call.GasUsed = 500

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("function outside the wallet interface", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "transfer", Arguments{})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)

		assert.Equal(t, uint64(1), store.latest[testWallet].CallID)
		assert.True(t, store.processed[call.ID])
	})

	t.Run("wallet without recorded state", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		call := newCall(1, "addOwnerWithThreshold", Arguments{"owner": ownerB.Hex()})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.True(t, store.processed[call.ID])
	})

	t.Run("call older than the recorded state", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(5, "addOwnerWithThreshold", Arguments{"owner": ownerB.Hex()}))
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = svc.Process(t.Context(), newCall(2, "changeThreshold", Arguments{"_threshold": json.Number("2")}))
		require.NoError(t, err)
		assert.True(t, applied)

		status := store.latest[testWallet]
		assert.Equal(t, uint64(2), status.Threshold)
		assert.Equal(t, uint64(2), status.CallID)
	})
}

func TestProcessSetup(t *testing.T) {
	t.Run("new wallet", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		call := newCall(1, "setup", setupArgs(2, ownerA, ownerB))

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		wallet, ok := store.wallets[testWallet]
		require.True(t, ok)
		assert.Equal(t, call.TxHash, wallet.TxHash)
		assert.Equal(t, call.BlockNumber, wallet.BlockNumber)
		assert.Equal(t, call.Timestamp, wallet.CreatedAt)

		status := store.latest[testWallet]
		assert.Equal(t, testWallet, status.Wallet)
		assert.Zero(t, status.Nonce)
		assert.Equal(t, uint64(2), status.Threshold)
		assert.Equal(t, []common.Address{ownerA, ownerB}, status.Owners)
		assert.Equal(t, mcCurrent, status.MasterCopy)
		assert.Equal(t, common.Address{}, status.FallbackHandler)
		assert.Equal(t, call.ID, status.CallID)

		assert.Contains(t, store.snapshots, call.ID)
		assert.True(t, store.processed[call.ID])
	})

	t.Run("fallback handler argument", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		args := setupArgs(1, ownerA)
		args["fallbackHandler"] = ownerD.Hex()

		applied, err := svc.Process(t.Context(), newCall(1, "setup", args))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, ownerD, store.latest[testWallet].FallbackHandler)
	})

	t.Run("replayed setup", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		call := newCall(1, "setup", setupArgs(1, ownerA))
		for range 2 {
			applied, err := svc.Process(t.Context(), call)
			require.NoError(t, err)
			assert.True(t, applied)
		}

		assert.Len(t, store.snapshots, 1)
		assert.Equal(t, call.TxHash, store.wallets[testWallet].TxHash)
	})

	t.Run("second setup keeps the origin transaction", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		first := newCall(1, "setup", setupArgs(1, ownerA))
		second := newCall(2, "setup", setupArgs(1, ownerB))

		for _, call := range []DecodedCall{first, second} {
			applied, err := svc.Process(t.Context(), call)
			require.NoError(t, err)
			assert.True(t, applied)
		}

		assert.Equal(t, first.TxHash, store.wallets[testWallet].TxHash)
		assert.Equal(t, []common.Address{ownerB}, store.latest[testWallet].Owners)
		assert.Len(t, store.snapshots, 2)
	})

	t.Run("setup from the zero address", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		call := newCall(1, "setup", setupArgs(1, ownerA))
		call.From = common.Address{}

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)

		assert.Empty(t, store.wallets)
		assert.True(t, store.processed[call.ID])
	})
}

func TestProcessAddOwner(t *testing.T) {
	t.Run("new owner at the head of the list", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "addOwnerWithThreshold", Arguments{
			"owner":      ownerB.Hex(),
			"_threshold": json.Number("2"),
		})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		status := store.latest[testWallet]
		assert.Equal(t, []common.Address{ownerB, ownerA}, status.Owners)
		assert.Equal(t, uint64(2), status.Threshold)
		assert.Equal(t, call.ID, status.CallID)
		assert.Contains(t, store.snapshots, call.ID)
	})

	t.Run("zero threshold keeps the current one", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "addOwnerWithThreshold", Arguments{
			"owner":      ownerB.Hex(),
			"_threshold": json.Number("0"),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, uint64(1), store.latest[testWallet].Threshold)
	})

	t.Run("missing threshold keeps the current one", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "addOwnerWithThreshold", Arguments{
			"owner": ownerB.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, uint64(1), store.latest[testWallet].Threshold)
	})
}

func TestProcessRemoveOwner(t *testing.T) {
	t.Run("owner removal with cleanup", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 2, ownerA, ownerB)

		var (
			queued   = common.BigToHash(big.NewInt(0xaaa))
			executed = common.BigToHash(big.NewInt(0xbbb))
			chainTx  = common.BigToHash(big.NewInt(0xccc))
			message  = common.BigToHash(big.NewInt(0xddd))
		)
		store.transactions[queued] = MultisigTransaction{Hash: queued, Wallet: testWallet, Nonce: 3}
		store.transactions[executed] = MultisigTransaction{Hash: executed, Wallet: testWallet, Nonce: 0, ExecTxHash: chainTx}
		store.confirmations[confirmationKey{hash: queued, owner: ownerB}] = Confirmation{TransactionHash: queued, Owner: ownerB}
		store.confirmations[confirmationKey{hash: executed, owner: ownerB}] = Confirmation{TransactionHash: executed, Owner: ownerB, ExecTxHash: chainTx}
		store.delegations = []delegationRow{
			{wallet: testWallet, delegator: ownerB, delegate: ownerC},
			{wallet: otherWallet, delegator: ownerB, delegate: ownerC},
		}
		store.messageConfs = []messageConfirmationRow{
			{owner: ownerB, message: message},
			{owner: ownerA, message: message},
		}

		applied, err := svc.Process(t.Context(), newCall(2, "removeOwner", Arguments{
			"owner":      ownerB.Hex(),
			"_threshold": json.Number("1"),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		status := store.latest[testWallet]
		assert.Equal(t, []common.Address{ownerA}, status.Owners)
		assert.Equal(t, uint64(1), status.Threshold)

		assert.NotContains(t, store.confirmations, confirmationKey{hash: queued, owner: ownerB})
		assert.Contains(t, store.confirmations, confirmationKey{hash: executed, owner: ownerB})
		assert.Equal(t, []delegationRow{{wallet: otherWallet, delegator: ownerB, delegate: ownerC}}, store.delegations)
		assert.Equal(t, []messageConfirmationRow{{owner: ownerA, message: message}}, store.messageConfs)
	})

	t.Run("absent owner", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "removeOwner", Arguments{
			"owner":      ownerB.Hex(),
			"_threshold": json.Number("5"),
		})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)

		status := store.latest[testWallet]
		assert.Equal(t, []common.Address{ownerA}, status.Owners)
		assert.Equal(t, uint64(1), status.Threshold)
		assert.Equal(t, uint64(1), status.CallID)
		assert.True(t, store.processed[call.ID])
	})

	t.Run("legacy removeOwnerWithThreshold spelling", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 2, ownerA, ownerB)

		applied, err := svc.Process(t.Context(), newCall(2, "removeOwnerWithThreshold", Arguments{
			"owner":      ownerA.Hex(),
			"_threshold": json.Number("1"),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, []common.Address{ownerB}, store.latest[testWallet].Owners)
	})
}

func TestProcessSwapOwner(t *testing.T) {
	t.Run("owner swap keeps the position", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 2, ownerA, ownerB, ownerC)

		queued := common.BigToHash(big.NewInt(0xaaa))
		store.transactions[queued] = MultisigTransaction{Hash: queued, Wallet: testWallet, Nonce: 0}
		store.confirmations[confirmationKey{hash: queued, owner: ownerB}] = Confirmation{TransactionHash: queued, Owner: ownerB}

		applied, err := svc.Process(t.Context(), newCall(2, "swapOwner", Arguments{
			"oldOwner": ownerB.Hex(),
			"newOwner": ownerD.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, []common.Address{ownerA, ownerD, ownerC}, store.latest[testWallet].Owners)
		assert.NotContains(t, store.confirmations, confirmationKey{hash: queued, owner: ownerB})
	})

	t.Run("absent outgoing owner", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "swapOwner", Arguments{
			"oldOwner": ownerB.Hex(),
			"newOwner": ownerD.Hex(),
		}))
		require.NoError(t, err)
		assert.False(t, applied)

		assert.Equal(t, []common.Address{ownerA}, store.latest[testWallet].Owners)
	})
}

func TestProcessChangeThreshold(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newProcessor(store)
	seedWallet(t, svc, 1, ownerA, ownerB)

	applied, err := svc.Process(t.Context(), newCall(2, "changeThreshold", Arguments{
		"_threshold": json.Number("2"),
	}))
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, uint64(2), store.latest[testWallet].Threshold)
}

func TestProcessChangeMasterCopy(t *testing.T) {
	seedWithMasterCopy := func(t *testing.T, svc *service, masterCopy common.Address) {
		t.Helper()

		call := newCall(1, "setup", setupArgs(1, ownerA))
		call.To = masterCopy

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		require.True(t, applied)
	}

	t.Run("breaking upgrade drops the queued transactions", func(t *testing.T) {
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcOld).Return("1.1.1", nil)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)

		seedWithMasterCopy(t, svc, mcOld)

		var (
			executed     = common.BigToHash(big.NewInt(0x10))
			queuedHigh   = common.BigToHash(big.NewInt(0x20))
			queuedLow    = common.BigToHash(big.NewInt(0x30))
			queuedOthers = common.BigToHash(big.NewInt(0x40))
			chainTx      = common.BigToHash(big.NewInt(0x50))
		)
		store.transactions[executed] = MultisigTransaction{Hash: executed, Wallet: testWallet, Nonce: 1, ExecTxHash: chainTx}
		store.transactions[queuedHigh] = MultisigTransaction{Hash: queuedHigh, Wallet: testWallet, Nonce: 5}
		store.transactions[queuedLow] = MultisigTransaction{Hash: queuedLow, Wallet: testWallet, Nonce: 1}
		store.transactions[queuedOthers] = MultisigTransaction{Hash: queuedOthers, Wallet: otherWallet, Nonce: 9}

		applied, err := svc.Process(t.Context(), newCall(2, "changeMasterCopy", Arguments{
			"_masterCopy": mcCurrent.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, mcCurrent, store.latest[testWallet].MasterCopy)
		assert.NotContains(t, store.transactions, queuedHigh)
		assert.Contains(t, store.transactions, executed)
		assert.Contains(t, store.transactions, queuedLow)
		assert.Contains(t, store.transactions, queuedOthers)
	})

	t.Run("compatible upgrade keeps the queue", func(t *testing.T) {
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		versions.On("VersionForMasterCopy", mock.Anything, mcOld).Return("1.4.1", nil)

		seedWithMasterCopy(t, svc, mcCurrent)

		queued := common.BigToHash(big.NewInt(0x20))
		store.transactions[queued] = MultisigTransaction{Hash: queued, Wallet: testWallet, Nonce: 5}

		applied, err := svc.Process(t.Context(), newCall(2, "changeMasterCopy", Arguments{
			"_masterCopy": mcOld.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, mcOld, store.latest[testWallet].MasterCopy)
		assert.Contains(t, store.transactions, queued)
	})

	t.Run("unknown version keeps the queue", func(t *testing.T) {
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcOld).Return("", ErrVersionNotFound)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)

		seedWithMasterCopy(t, svc, mcOld)

		queued := common.BigToHash(big.NewInt(0x20))
		store.transactions[queued] = MultisigTransaction{Hash: queued, Wallet: testWallet, Nonce: 5}

		applied, err := svc.Process(t.Context(), newCall(2, "changeMasterCopy", Arguments{
			"_masterCopy": mcCurrent.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, mcCurrent, store.latest[testWallet].MasterCopy)
		assert.Contains(t, store.transactions, queued)
	})

	t.Run("registry fault", func(t *testing.T) {
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcOld).Return("1.1.1", nil)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("", errors.New("registry down"))

		seedWithMasterCopy(t, svc, mcOld)

		call := newCall(2, "changeMasterCopy", Arguments{"_masterCopy": mcCurrent.Hex()})

		_, err := svc.Process(t.Context(), call)
		require.Error(t, err)

		assert.Equal(t, mcOld, store.latest[testWallet].MasterCopy)
		assert.False(t, store.processed[call.ID])
	})
}

func TestProcessFallbackHandlerAndGuard(t *testing.T) {
	t.Run("fallback handler update", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "setFallbackHandler", Arguments{
			"handler": ownerD.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, ownerD, store.latest[testWallet].FallbackHandler)
	})

	t.Run("guard set and cleared", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "setGuard", Arguments{"guard": ownerD.Hex()}))
		require.NoError(t, err)
		require.True(t, applied)
		assert.Equal(t, ownerD, store.latest[testWallet].Guard)

		applied, err = svc.Process(t.Context(), newCall(3, "setGuard", Arguments{"guard": (common.Address{}).Hex()}))
		require.NoError(t, err)
		require.True(t, applied)
		assert.Equal(t, common.Address{}, store.latest[testWallet].Guard)
	})
}

func TestProcessModules(t *testing.T) {
	t.Run("module enabled", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		applied, err := svc.Process(t.Context(), newCall(2, "enableModule", Arguments{"module": moduleAddr.Hex()}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, []common.Address{moduleAddr}, store.latest[testWallet].Modules)
	})

	t.Run("module disabled", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		for i, function := range []string{"enableModule", "disableModule"} {
			applied, err := svc.Process(t.Context(), newCall(uint64(i+2), function, Arguments{"module": moduleAddr.Hex()}))
			require.NoError(t, err)
			require.True(t, applied)
		}

		assert.Empty(t, store.latest[testWallet].Modules)
	})

	t.Run("disabling an unknown module", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "disableModule", Arguments{"module": moduleAddr.Hex()})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.True(t, store.processed[call.ID])
	})
}

func TestProcessModuleExecution(t *testing.T) {
	moduleArgs := func(module *common.Address) Arguments {
		args := Arguments{
			"to":        ownerC.Hex(),
			"value":     json.Number("42"),
			"data":      "0xdead",
			"operation": json.Number("0"),
		}
		if module != nil {
			args["module"] = module.Hex()
		}

		return args
	}

	t.Run("module named by the call", func(t *testing.T) {
		store := newMemStore()
		userOps := new(userOpScannerMock)
		svc, _, _ := newProcessor(store, WithUserOpScanner(userOps))
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "execTransactionFromModule", moduleArgs(&moduleAddr))
		userOps.On("ProcessUserOperations", mock.Anything, testWallet, call.TxHash, mock.Anything).Return(2, nil)

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		stored, ok := store.moduleTxs[call.ID]
		require.True(t, ok)
		assert.Equal(t, testWallet, stored.Wallet)
		assert.Equal(t, moduleAddr, stored.Module)
		assert.Equal(t, ownerC, stored.To)
		assert.Equal(t, int64(42), stored.Value.Int64())
		assert.Equal(t, []byte{0xde, 0xad}, stored.Data)
		assert.False(t, stored.Failed)

		assert.Contains(t, store.relevant, relevantKey{wallet: testWallet, hash: call.TxHash})

		assert.Equal(t, uint64(1), store.latest[testWallet].CallID)
		assert.Len(t, store.snapshots, 1)
		assert.Zero(t, store.latest[testWallet].Nonce)

		userOps.AssertExpectations(t)
	})

	t.Run("failed module execution", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "execTransactionFromModule", moduleArgs(&moduleAddr))
		call.Logs = []safetx.Log{{
			Address: testWallet,
			Topics:  []common.Hash{moduleFailureTopic(), common.BytesToHash(moduleAddr.Bytes())},
		}}

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		assert.True(t, store.moduleTxs[call.ID].Failed)
	})

	t.Run("module resolved from the previous trace", func(t *testing.T) {
		store := newMemStore()
		svc, traces, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "execTransactionFromModuleReturnData", moduleArgs(nil))
		call.TracePath = []int64{0, 3}
		traces.On("PreviousCall", mock.Anything, call.TxHash, []int64{0, 3}).
			Return(RawCall{From: moduleAddr, To: testWallet, Kind: CallKindCall}, nil)

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, moduleAddr, store.moduleTxs[call.ID].Module)
		traces.AssertExpectations(t)
	})

	t.Run("missing previous trace", func(t *testing.T) {
		store := newMemStore()
		svc, traces, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "execTransactionFromModule", moduleArgs(nil))
		call.TracePath = []int64{0}
		traces.On("PreviousCall", mock.Anything, call.TxHash, []int64{0}).
			Return(RawCall{}, ErrPreviousTraceNotFound)

		_, err := svc.Process(t.Context(), call)
		assert.ErrorIs(t, err, ErrPreviousTraceNotFound)

		assert.Empty(t, store.moduleTxs)
		assert.False(t, store.processed[call.ID])
	})

	t.Run("scanner fault rolls the call back", func(t *testing.T) {
		store := newMemStore()
		userOps := new(userOpScannerMock)
		svc, _, _ := newProcessor(store, WithUserOpScanner(userOps))
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "execTransactionFromModule", moduleArgs(&moduleAddr))
		userOps.On("ProcessUserOperations", mock.Anything, testWallet, call.TxHash, mock.Anything).
			Return(0, errors.New("scanner down"))

		_, err := svc.Process(t.Context(), call)
		require.Error(t, err)

		assert.Empty(t, store.moduleTxs)
		assert.Empty(t, store.relevant)
	})
}

func TestProcessApproveHash(t *testing.T) {
	digest := common.BigToHash(big.NewInt(0x5afe))

	t.Run("approval named by the call", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "approveHash", Arguments{
			"hashToApprove": digest.Hex(),
			"owner":         ownerA.Hex(),
		})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		confirmation, ok := store.confirmations[confirmationKey{hash: digest, owner: ownerA}]
		require.True(t, ok)
		assert.Equal(t, safesig.KindApprovedHash, confirmation.Kind)
		assert.Equal(t, safesig.ApprovedHashBytes(ownerA), confirmation.Signature)
		assert.Equal(t, call.TxHash, confirmation.ExecTxHash)

		assert.Equal(t, uint64(1), store.latest[testWallet].CallID)
		assert.Len(t, store.snapshots, 1)
	})

	t.Run("approval replayed over an earlier confirmation", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		existing := Confirmation{
			TransactionHash: digest,
			Owner:           ownerA,
			Signature:       []byte{1, 2, 3},
			Kind:            safesig.KindEOA,
		}
		store.confirmations[confirmationKey{hash: digest, owner: ownerA}] = existing

		call := newCall(2, "approveHash", Arguments{
			"hashToApprove": digest.Hex(),
			"owner":         ownerA.Hex(),
		})

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		confirmation := store.confirmations[confirmationKey{hash: digest, owner: ownerA}]
		assert.Equal(t, call.TxHash, confirmation.ExecTxHash)
		assert.Equal(t, []byte{1, 2, 3}, confirmation.Signature)
		assert.Equal(t, safesig.KindEOA, confirmation.Kind)
	})

	t.Run("approval that already has its transaction", func(t *testing.T) {
		store := newMemStore()
		svc, _, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		chainTx := common.BigToHash(big.NewInt(0xccc))
		store.confirmations[confirmationKey{hash: digest, owner: ownerA}] = Confirmation{
			TransactionHash: digest,
			Owner:           ownerA,
			ExecTxHash:      chainTx,
		}

		applied, err := svc.Process(t.Context(), newCall(2, "approveHash", Arguments{
			"hashToApprove": digest.Hex(),
			"owner":         ownerA.Hex(),
		}))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, chainTx, store.confirmations[confirmationKey{hash: digest, owner: ownerA}].ExecTxHash)
	})

	t.Run("owner resolved from the previous trace", func(t *testing.T) {
		store := newMemStore()
		svc, traces, _ := newProcessor(store)
		seedWallet(t, svc, 1, ownerA)

		call := newCall(2, "approveHash", Arguments{"hashToApprove": digest.Hex()})
		call.TracePath = []int64{1}
		traces.On("PreviousCall", mock.Anything, call.TxHash, []int64{1}).
			Return(RawCall{From: ownerB, To: testWallet, Kind: CallKindCall}, nil)

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Contains(t, store.confirmations, confirmationKey{hash: digest, owner: ownerB})
		traces.AssertExpectations(t)
	})
}

func TestProcessExecution(t *testing.T) {
	t.Run("execution advances the nonce", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(1_000), 0))
		require.NoError(t, err)

		call := newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(1_000), signDigest(t, key, digest)))

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		tx, ok := store.transactions[digest]
		require.True(t, ok)
		assert.Equal(t, testWallet, tx.Wallet)
		assert.Equal(t, ownerC, tx.To)
		assert.Equal(t, int64(1_000), tx.Value.Int64())
		assert.Zero(t, tx.Nonce)
		assert.Equal(t, call.TxHash, tx.ExecTxHash)
		assert.False(t, tx.Failed)
		assert.True(t, tx.Trusted)

		confirmation, ok := store.confirmations[confirmationKey{hash: digest, owner: owner}]
		require.True(t, ok)
		assert.Equal(t, safesig.KindEOA, confirmation.Kind)
		assert.Equal(t, call.TxHash, confirmation.ExecTxHash)

		status := store.latest[testWallet]
		assert.Equal(t, uint64(1), status.Nonce)
		assert.Equal(t, call.ID, status.CallID)
		assert.Contains(t, store.snapshots, call.ID)
		assert.Contains(t, store.relevant, relevantKey{wallet: testWallet, hash: call.TxHash})
	})

	t.Run("nonce carried by the call", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 7))
		require.NoError(t, err)

		args := execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest))
		args["nonce"] = json.Number("7")

		applied, err := svc.Process(t.Context(), newCall(2, "execTransaction", args))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, uint64(7), store.transactions[digest].Nonce)
		assert.Equal(t, uint64(8), store.latest[testWallet].Nonce)
	})

	t.Run("replayed execution", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 4))
		require.NoError(t, err)

		args := execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest))
		args["nonce"] = json.Number("4")
		call := newCall(2, "execTransaction", args)

		for range 2 {
			applied, err := svc.Process(t.Context(), call)
			require.NoError(t, err)
			assert.True(t, applied)
		}

		assert.Len(t, store.transactions, 1)
		assert.Len(t, store.confirmations, 1)
		assert.Equal(t, uint64(5), store.latest[testWallet].Nonce)
		assert.Len(t, store.snapshots, 2)
	})

	t.Run("failed execution", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		call := newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest)))
		call.Logs = []safetx.Log{{
			Address: testWallet,
			Topics:  []common.Hash{executionFailureTopic()},
			Data:    append(digest.Bytes(), make([]byte, 32)...),
		}}

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		assert.True(t, store.transactions[digest].Failed)
		assert.Equal(t, uint64(1), store.latest[testWallet].Nonce)
	})

	t.Run("one confirmation per signature", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 2, owner, ownerB)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		blob := append(signDigest(t, key, digest), safesig.ApprovedHashBytes(ownerB)...)

		applied, err := svc.Process(t.Context(), newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(0), blob)))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Equal(t, safesig.KindEOA, store.confirmations[confirmationKey{hash: digest, owner: owner}].Kind)
		assert.Equal(t, safesig.KindApprovedHash, store.confirmations[confirmationKey{hash: digest, owner: ownerB}].Kind)
	})

	t.Run("changed signature replaced", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		store.confirmations[confirmationKey{hash: digest, owner: owner}] = Confirmation{
			TransactionHash: digest,
			Owner:           owner,
			Signature:       []byte{9, 9, 9},
			Kind:            safesig.KindApprovedHash,
		}

		chunk := signDigest(t, key, digest)

		applied, err := svc.Process(t.Context(), newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(0), chunk)))
		require.NoError(t, err)
		assert.True(t, applied)

		confirmation := store.confirmations[confirmationKey{hash: digest, owner: owner}]
		assert.Equal(t, chunk, confirmation.Signature)
		assert.Equal(t, safesig.KindEOA, confirmation.Kind)
	})

	t.Run("proposal filled in on first execution", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		store.transactions[digest] = MultisigTransaction{Hash: digest, Wallet: testWallet, To: ownerC, Nonce: 0}

		call := newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest)))

		applied, err := svc.Process(t.Context(), call)
		require.NoError(t, err)
		assert.True(t, applied)

		tx := store.transactions[digest]
		assert.Equal(t, call.TxHash, tx.ExecTxHash)
		assert.True(t, tx.Trusted)
		assert.NotEmpty(t, tx.Signatures)
	})

	t.Run("legacy dataGas wallet", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, _ := newProcessor(store)

		setup := newCall(1, "setup", setupArgs(1, owner))
		setup.To = mcLegacy
		applied, err := svc.Process(t.Context(), setup)
		require.NoError(t, err)
		require.True(t, applied)

		digest, err := safetx.TxHash(testWallet, testChainID, safetx.LegacyVersion, execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		args := execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest))
		delete(args, "baseGas")
		args["dataGas"] = json.Number("0")

		applied, err = svc.Process(t.Context(), newCall(2, "execTransaction", args))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Contains(t, store.transactions, digest)
		assert.Equal(t, safesig.KindEOA, store.confirmations[confirmationKey{hash: digest, owner: owner}].Kind)
	})

	t.Run("unknown master copy defaults to the current version", func(t *testing.T) {
		key, owner := newSigner(t)
		store := newMemStore()
		svc, _, versions := newProcessor(store)
		versions.On("VersionForMasterCopy", mock.Anything, mock.Anything).Return("", ErrVersionNotFound)
		seedWallet(t, svc, 1, owner)

		digest, err := safetx.TxHash(testWallet, testChainID, safetx.DefaultVersion, execParams(ownerC, big.NewInt(0), 0))
		require.NoError(t, err)

		applied, err := svc.Process(t.Context(), newCall(2, "execTransaction", execArgs(ownerC, big.NewInt(0), signDigest(t, key, digest))))
		require.NoError(t, err)
		assert.True(t, applied)

		assert.Contains(t, store.transactions, digest)
	})
}

// TestWalletLifecycle walks one wallet from creation to its first execution:
// setup, an owner addition that raises the threshold, then an executed
// multisig transaction whose signature blob yields both confirmations.
func TestWalletLifecycle(t *testing.T) {
	key, owner := newSigner(t)
	store := newMemStore()
	svc, _, versions := newProcessor(store)
	versions.On("VersionForMasterCopy", mock.Anything, mcCurrent).Return("1.3.0", nil)

	applied, err := svc.Process(t.Context(), newCall(1, "setup", setupArgs(1, owner)))
	require.NoError(t, err)
	require.True(t, applied)

	status := store.latest[testWallet]
	assert.Equal(t, []common.Address{owner}, status.Owners)
	assert.Equal(t, uint64(1), status.Threshold)
	assert.Zero(t, status.Nonce)

	applied, err = svc.Process(t.Context(), newCall(2, "addOwnerWithThreshold", Arguments{
		"owner":      ownerB.Hex(),
		"_threshold": json.Number("2"),
	}))
	require.NoError(t, err)
	require.True(t, applied)

	status = store.latest[testWallet]
	assert.Equal(t, []common.Address{ownerB, owner}, status.Owners)
	assert.Equal(t, uint64(2), status.Threshold)
	assert.Zero(t, status.Nonce, "owner changes must not touch the nonce")

	digest, err := safetx.TxHash(testWallet, testChainID, "1.3.0", execParams(ownerC, big.NewInt(5_000), 0))
	require.NoError(t, err)

	blob := append(signDigest(t, key, digest), safesig.ApprovedHashBytes(ownerB)...)
	call := newCall(3, "execTransaction", execArgs(ownerC, big.NewInt(5_000), blob))

	applied, err = svc.Process(t.Context(), call)
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, uint64(1), store.latest[testWallet].Nonce)

	tx := store.transactions[digest]
	assert.False(t, tx.Failed)
	assert.Equal(t, call.TxHash, tx.ExecTxHash)

	assert.Equal(t, safesig.KindEOA, store.confirmations[confirmationKey{hash: digest, owner: owner}].Kind)
	assert.Equal(t, safesig.KindApprovedHash, store.confirmations[confirmationKey{hash: digest, owner: ownerB}].Kind)
}
