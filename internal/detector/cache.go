package detector

import (
	"fmt"
	"sync"
)

// Cache hands out detector clients keyed by (family, version). Clients
// are created lazily on first use and reused afterward; the variant set
// is small and fixed, so there is no eviction.
type Cache struct {
	newConfig func() Config

	mu      sync.Mutex
	clients map[string]Detector
}

// NewCache creates a cache. newConfig produces the construction config
// for each client; Version is filled in by the cache.
func NewCache(newConfig func() Config) *Cache {
	return &Cache{
		newConfig: newConfig,
		clients:   make(map[string]Detector),
	}
}

// Get returns the detector for (family, version), constructing it on
// first access. Version may be empty, selecting the family default.
func (c *Cache) Get(family, version string) (Detector, error) {
	if version == "" {
		def, err := DefaultVersion(family)
		if err != nil {
			return nil, err
		}
		version = def
	}

	key := fmt.Sprintf("%s/%s", family, version)

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.clients[key]; ok {
		return d, nil
	}

	cfg := c.newConfig()
	cfg.Version = version
	d, err := New(family, cfg)
	if err != nil {
		return nil, err
	}
	c.clients[key] = d
	return d, nil
}
