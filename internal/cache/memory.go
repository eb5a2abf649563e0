package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pharmatrace-server/internal/extractor"
)

// MemoryCache is the in-process tier.
type MemoryCache struct {
	lru *expirable.LRU[string, *extractor.PatientData]
}

// NewMemoryCache holds up to size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 256
	}
	return &MemoryCache{lru: expirable.NewLRU[string, *extractor.PatientData](size, nil, ttl)}
}

func (m *MemoryCache) Get(key string) (*extractor.PatientData, bool) {
	return m.lru.Get(key)
}

func (m *MemoryCache) Set(key string, data *extractor.PatientData) {
	m.lru.Add(key, data)
}

func (m *MemoryCache) Len() int {
	return m.lru.Len()
}
