package model

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache puts an LRU in front of registry loads. Artifacts are immutable, so
// a cached entry can never go stale.
type Cache struct {
	registry *Registry
	cache    *lru.Cache[string, *Artifact]
}

// NewCache wraps a registry with a fixed-capacity artifact cache.
func NewCache(registry *Registry, size int) (*Cache, error) {
	cache, err := lru.New[string, *Artifact](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &Cache{registry: registry, cache: cache}, nil
}

// Load returns the artifact for a ref, hitting disk only on a miss.
func (c *Cache) Load(ref Ref) (*Artifact, error) {
	key := ref.String()
	if artifact, ok := c.cache.Get(key); ok {
		return artifact, nil
	}
	artifact, err := c.registry.Load(ref)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, artifact)
	return artifact, nil
}
