package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

// FileStore keeps state in memory and rewrites a JSON snapshot after every change.
type FileStore struct {
	path   string
	mem    *MemoryStore
	saveMu sync.Mutex
}

type snapshot struct {
	Markets   []amm.Market `json:"markets"`
	Pools     []amm.Pool   `json:"pools"`
	UpdatedAt string       `json:"updated_at"`
}

// OpenFileStore loads the snapshot at path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	s := &FileStore{path: path, mem: NewMemoryStore()}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("state file path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	for _, market := range snap.Markets {
		s.mem.markets[market.Authority] = market
	}
	for _, pool := range snap.Pools {
		s.mem.pools[pool.ID] = pool
	}
	return s, nil
}

func (s *FileStore) PutMarket(ctx context.Context, market amm.Market) error {
	if err := s.mem.PutMarket(ctx, market); err != nil {
		return err
	}
	return s.save()
}

func (s *FileStore) Market(ctx context.Context, authority common.Address) (amm.Market, error) {
	return s.mem.Market(ctx, authority)
}

func (s *FileStore) PutPool(ctx context.Context, pool amm.Pool) error {
	if err := s.mem.PutPool(ctx, pool); err != nil {
		return err
	}
	return s.save()
}

func (s *FileStore) Pool(ctx context.Context, id common.Address) (amm.Pool, error) {
	return s.mem.Pool(ctx, id)
}

func (s *FileStore) Pools(ctx context.Context) ([]amm.Pool, error) {
	return s.mem.Pools(ctx)
}

func (s *FileStore) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mem.mu.RLock()
	snap := snapshot{
		Markets:   s.mem.sortedMarkets(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.mem.mu.RUnlock()

	pools, err := s.mem.Pools(context.Background())
	if err != nil {
		return err
	}
	snap.Pools = pools

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
