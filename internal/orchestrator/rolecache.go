package orchestrator

import (
	"sync"
)

// RoleCacheEntry is the last role a node was confirmed to hold.
type RoleCacheEntry struct {
	Address  string `json:"address"`
	Role     string `json:"role"`
	IsMaster bool   `json:"isMaster"`
}

// RoleCache maps a node address to the last role it was observed holding.
//
// Entries are written only for nodes confirmed running in the latest
// snapshot and are never regressed by an absence: a node that drops out of
// a snapshot keeps its last confirmed role until it is observed again. There
// is no eviction; a cache lives exactly as long as the Session that owns it.
//
// Thread Safety: all methods are safe for concurrent use. Lookup never
// mutates.
type RoleCache struct {
	mu      sync.RWMutex
	entries map[string]RoleCacheEntry // address -> entry
}

// NewRoleCache returns an empty cache. A cold cache has no roles, so every
// node falls back to its positional default until first observed.
func NewRoleCache() *RoleCache {
	return &RoleCache{entries: make(map[string]RoleCacheEntry)}
}

// Record overwrites the entry for address unconditionally.
func (c *RoleCache) Record(address, role string, isMaster bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[address] = RoleCacheEntry{Address: address, Role: role, IsMaster: isMaster}
}

// Lookup returns the entry for address, if any.
func (c *RoleCache) Lookup(address string) (RoleCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[address]
	return e, ok
}

// Len returns the number of cached addresses.
func (c *RoleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of every entry.
func (c *RoleCache) Entries() map[string]RoleCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]RoleCacheEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
