// Package cache provides a capacity-bounded store with per-category TTLs.
//
// All categories share one LRU: a burst of block fetches can evict stale
// balance entries and vice versa. Expiry is lazy; an entry past its TTL is
// treated as absent and removed on the read that finds it.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
)

// Category partitions cache keys and selects the TTL applied to them.
type Category string

const (
	CategoryBlock         Category = "block"
	CategoryBlockDetail   Category = "block_detail"
	CategoryTransaction   Category = "tx"
	CategoryBalance       Category = "balance"
	CategoryAddress       Category = "address"
	CategoryGasInfo       Category = "gas"
	CategoryTokenMetadata Category = "token_meta"
	CategoryAbi           Category = "abi"
	CategorySelector      Category = "selector"
	CategoryEnsName       Category = "ens"
)

// defaultTTLs binds every category to its freshness window.
var defaultTTLs = map[Category]time.Duration{
	CategoryBlock:         constants.BlockTTL,
	CategoryBlockDetail:   constants.BlockTTL,
	CategoryTransaction:   constants.TransactionTTL,
	CategoryBalance:       constants.BalanceTTL,
	CategoryAddress:       constants.BalanceTTL,
	CategoryGasInfo:       constants.GasInfoTTL,
	CategoryTokenMetadata: constants.TokenMetadataTTL,
	CategoryAbi:           constants.AbiTTL,
	CategorySelector:      constants.AbiTTL,
	CategoryEnsName:       constants.EnsNameTTL,
}

type entry struct {
	value      interface{}
	insertedAt time.Time
	category   Category
}

// Config holds cache store configuration.
type Config struct {
	// Capacity is the global entry limit shared by all categories.
	Capacity int
	// TTLOverrides replaces the default TTL for the listed categories.
	// TTLs are fixed at construction.
	TTLOverrides map[Category]time.Duration
	Logger       *zap.Logger
}

// Store is a thread-safe LRU keyed by (category, key) with lazy TTL expiry.
type Store struct {
	lru    *lru.Cache[string, *entry]
	ttls   map[Category]time.Duration
	logger *zap.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a cache store.
func New(cfg Config) (*Store, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backing, err := lru.New[string, *entry](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	ttls := make(map[Category]time.Duration, len(defaultTTLs))
	for category, ttl := range defaultTTLs {
		ttls[category] = ttl
	}
	for category, ttl := range cfg.TTLOverrides {
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl override for %q must be positive", category)
		}
		ttls[category] = ttl
	}

	return &Store{
		lru:    backing,
		ttls:   ttls,
		logger: logger.Named("cache"),
		now:    time.Now,
	}, nil
}

// Get returns the cached value for (category, key). An entry past its TTL
// is removed and reported as a miss. A hit counts as a use for eviction
// ordering.
func (s *Store) Get(category Category, key string) (interface{}, bool) {
	composite := compositeKey(category, key)
	e, ok := s.lru.Get(composite)
	if !ok {
		return nil, false
	}
	if s.expired(e) {
		s.lru.Remove(composite)
		s.logger.Debug("expired entry dropped",
			zap.String("category", string(category)),
			zap.String("key", key))
		return nil, false
	}
	return e.value, true
}

// Put stores a value under (category, key), refreshing its TTL window and
// marking it most recently used. Storing may evict the globally least
// recently used entry of any category.
func (s *Store) Put(category Category, key string, value interface{}) {
	s.lru.Add(compositeKey(category, key), &entry{
		value:      value,
		insertedAt: s.now(),
		category:   category,
	})
}

// Remove drops the entry for (category, key) if present.
func (s *Store) Remove(category Category, key string) {
	s.lru.Remove(compositeKey(category, key))
}

// Purge drops every entry. Used when switching chains.
func (s *Store) Purge() {
	s.lru.Purge()
}

// Len returns the number of stored entries, counting expired ones that
// have not been read since expiring.
func (s *Store) Len() int {
	return s.lru.Len()
}

// TTL reports the freshness window bound to a category.
func (s *Store) TTL(category Category) time.Duration {
	return s.ttls[category]
}

func (s *Store) expired(e *entry) bool {
	ttl, ok := s.ttls[e.category]
	if !ok {
		return true
	}
	return s.now().Sub(e.insertedAt) >= ttl
}

func compositeKey(category Category, key string) string {
	return string(category) + "/" + key
}
