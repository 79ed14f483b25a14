package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

var ErrNotFound = errors.New("not found")

// StateStore persists market and pool records.
type StateStore interface {
	PutMarket(ctx context.Context, market amm.Market) error
	Market(ctx context.Context, authority common.Address) (amm.Market, error)
	PutPool(ctx context.Context, pool amm.Pool) error
	Pool(ctx context.Context, id common.Address) (amm.Pool, error)
	Pools(ctx context.Context) ([]amm.Pool, error)
}

// Journal is a sink for applied operations.
type Journal interface {
	PutOperations(ctx context.Context, records []model.OperationRecord) error
}

// Sequencer reports the highest sequence number already journaled.
type Sequencer interface {
	LastSeq(ctx context.Context) (uint64, error)
}
