package server

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// LayoutCache keeps rendered layout documents in process, keyed by
// correlation ID. Entries expire after a TTL so running executions refresh.
type LayoutCache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewLayoutCache creates a cache holding up to maxCostBytes of layout JSON
func NewLayoutCache(maxCostBytes int64, ttl time.Duration) (*LayoutCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LayoutCache{c: c, ttl: ttl}, nil
}

// Get returns the cached layout of an execution
func (c *LayoutCache) Get(correlationID string) ([]byte, bool) {
	return c.c.Get(correlationID)
}

// Set stores a layout. Sets are applied asynchronously; Wait flushes them.
func (c *LayoutCache) Set(correlationID string, data []byte) {
	c.c.SetWithTTL(correlationID, data, int64(len(data)), c.ttl)
}

// Wait blocks until pending sets are visible
func (c *LayoutCache) Wait() {
	c.c.Wait()
}

// Delete drops the cached layout of an execution
func (c *LayoutCache) Delete(correlationID string) {
	c.c.Del(correlationID)
}

// Close shuts down the cache and releases resources.
func (c *LayoutCache) Close() {
	c.c.Close()
}
