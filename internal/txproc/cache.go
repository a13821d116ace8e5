package txproc

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// statusCache memoizes the latest wallet configuration for the duration of a
// batch, so consecutive calls against the same wallet skip the storage read.
//
// It does not survive a batch: the coordinator clears every touched wallet
// before and after each run. Cached values are treated as read-only by all
// callers; anything that mutates a status works on a clone.
type statusCache struct {
	mu       sync.Mutex
	statuses map[common.Address]WalletStatus
}

func newStatusCache() *statusCache {
	return &statusCache{statuses: make(map[common.Address]WalletStatus)}
}

func (c *statusCache) get(wallet common.Address) (WalletStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.statuses[wallet]
	return status, ok
}

func (c *statusCache) set(status WalletStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statuses[status.Wallet] = status
}

// invalidate drops the given wallets from the cache, or every wallet when
// called with none.
func (c *statusCache) invalidate(wallets ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(wallets) == 0 {
		clear(c.statuses)
		return
	}

	for _, wallet := range wallets {
		delete(c.statuses, wallet)
	}
}
