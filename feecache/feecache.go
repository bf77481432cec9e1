// Package feecache memoizes fee-estimate and relay-fee lookups against
// the daemon, refreshing on a TTL rather than on every request.
package feecache

import (
	"log"
	"sync"
	"time"

	"github.com/metaid/utxoquery/chain"
)

// TTL is how long a fee-estimate snapshot stays fresh before the next
// reader triggers a refresh.
const TTL = 60 * time.Second

// Estimator is the subset of the daemon gateway the cache depends on.
type Estimator interface {
	EstimateSmartFeeBatch(targets []uint16) chain.FeeEstimates
	RelayFee() (float64, error)
}

// Cache holds the last fetched fee estimates and the node's relay fee.
// Each field is guarded by its own RWMutex so a relay-fee read never
// waits on an estimates refresh and vice versa.
type Cache struct {
	daemon Estimator
	isRegtest bool

	estMu      sync.RWMutex
	estimates  chain.FeeEstimates
	estFetched time.Time

	relayMu  sync.RWMutex
	relayFee float64
	relaySet bool
}

// New builds a cache around daemon. isRegtest short-circuits estimates
// to the relay fee, matching regtest's lack of a real fee market.
func New(daemon Estimator, isRegtest bool) *Cache {
	return &Cache{daemon: daemon, isRegtest: isRegtest}
}

// EstimateFee returns the fee rate (sat/vByte) for confirmation within
// target blocks, or false if the node has no estimate for it.
func (c *Cache) EstimateFee(target uint16) (float64, bool) {
	if c.isRegtest {
		fee, err := c.RelayFee()
		return fee, err == nil
	}
	estimates := c.estimatesFresh()
	rate, ok := estimates[target]
	return rate, ok
}

// EstimateFeeMap returns the full set of recognized-target estimates.
func (c *Cache) EstimateFeeMap() chain.FeeEstimates {
	if c.isRegtest {
		fee, err := c.RelayFee()
		out := make(chain.FeeEstimates, len(chain.ConfTargets))
		if err == nil {
			for _, t := range chain.ConfTargets {
				out[t] = fee
			}
		}
		return out
	}
	return c.estimatesFresh()
}

func (c *Cache) estimatesFresh() chain.FeeEstimates {
	c.estMu.RLock()
	stale := time.Since(c.estFetched) > TTL
	current := c.estimates
	c.estMu.RUnlock()
	if !stale && current != nil {
		return current
	}

	fresh := c.daemon.EstimateSmartFeeBatch(chain.ConfTargets)
	c.estMu.Lock()
	c.estimates = fresh
	c.estFetched = time.Now()
	out := c.estimates
	c.estMu.Unlock()
	return out
}

// RelayFee returns the node's minimum relay fee, fetched once and
// memoized for the process lifetime: a node's relay fee policy does
// not change while it's running.
func (c *Cache) RelayFee() (float64, error) {
	c.relayMu.RLock()
	if c.relaySet {
		fee := c.relayFee
		c.relayMu.RUnlock()
		return fee, nil
	}
	c.relayMu.RUnlock()

	fee, err := c.daemon.RelayFee()
	if err != nil {
		log.Printf("feecache: relay fee refresh failed: %v", err)
		return 0, err
	}
	c.relayMu.Lock()
	c.relayFee = fee
	c.relaySet = true
	c.relayMu.Unlock()
	return fee, nil
}
