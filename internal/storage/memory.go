package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[common.Address]amm.Market
	pools   map[common.Address]amm.Pool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[common.Address]amm.Market),
		pools:   make(map[common.Address]amm.Pool),
	}
}

func (s *MemoryStore) PutMarket(ctx context.Context, market amm.Market) error {
	s.mu.Lock()
	s.markets[market.Authority] = market
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Market(ctx context.Context, authority common.Address) (amm.Market, error) {
	s.mu.RLock()
	market, ok := s.markets[authority]
	s.mu.RUnlock()
	if !ok {
		return amm.Market{}, fmt.Errorf("market %s: %w", authority.Hex(), ErrNotFound)
	}
	return market, nil
}

func (s *MemoryStore) PutPool(ctx context.Context, pool amm.Pool) error {
	s.mu.Lock()
	s.pools[pool.ID] = pool
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Pool(ctx context.Context, id common.Address) (amm.Pool, error) {
	s.mu.RLock()
	pool, ok := s.pools[id]
	s.mu.RUnlock()
	if !ok {
		return amm.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), ErrNotFound)
	}
	return pool, nil
}

// Pools returns every pool ordered by id.
func (s *MemoryStore) Pools(ctx context.Context) ([]amm.Pool, error) {
	s.mu.RLock()
	pools := make([]amm.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, pool)
	}
	s.mu.RUnlock()

	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.Hex() < pools[j].ID.Hex()
	})
	return pools, nil
}

// sortedMarkets expects s.mu to be held.
func (s *MemoryStore) sortedMarkets() []amm.Market {
	markets := make([]amm.Market, 0, len(s.markets))
	for _, market := range s.markets {
		markets = append(markets, market)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Authority.Hex() < markets[j].Authority.Hex()
	})
	return markets
}
