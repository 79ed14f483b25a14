package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

// PoolAccounts names the on-chain accounts that back a pool.
type PoolAccounts struct {
	MintA    common.Address
	MintB    common.Address
	ReserveA common.Address
	ReserveB common.Address
	PoolMint common.Address
}

// Reader loads pool reserves from ERC-20 contracts.
type Reader struct {
	caller     Caller
	maxRetries int
	backoff    time.Duration
	block      *big.Int
	logger     *zap.Logger
}

// NewReader builds a reader. A nil block reads at the latest block.
func NewReader(caller Caller, maxRetries int, backoff time.Duration, block *big.Int, logger *zap.Logger) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		caller:     caller,
		maxRetries: maxRetries,
		backoff:    backoff,
		block:      block,
		logger:     logger,
	}, nil
}

// Balance returns the holder's balance of asset. It fails when the balance
// does not fit in uint64.
func (r *Reader) Balance(ctx context.Context, asset, holder common.Address) (uint64, error) {
	var balance *big.Int
	err := withRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		v, err := BalanceOf(ctx, r.caller, asset, holder, r.block)
		if err != nil {
			r.logger.Debug("balanceOf failed", zap.String("token", asset.Hex()), zap.Error(err))
			return err
		}
		balance = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("balance of %s in %s: %w", holder.Hex(), asset.Hex(), err)
	}
	return narrow("balance", balance)
}

// Supply returns the total supply of asset.
func (r *Reader) Supply(ctx context.Context, asset common.Address) (uint64, error) {
	var supply *big.Int
	err := withRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		v, err := TotalSupply(ctx, r.caller, asset, r.block)
		if err != nil {
			r.logger.Debug("totalSupply failed", zap.String("token", asset.Hex()), zap.Error(err))
			return err
		}
		supply = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("supply of %s: %w", asset.Hex(), err)
	}
	return narrow("supply", supply)
}

// Reserves reads the three balances that make up a pool's reserves.
func (r *Reader) Reserves(ctx context.Context, accounts PoolAccounts) (amm.Reserves, error) {
	a, err := r.Balance(ctx, accounts.MintA, accounts.ReserveA)
	if err != nil {
		return amm.Reserves{}, err
	}
	b, err := r.Balance(ctx, accounts.MintB, accounts.ReserveB)
	if err != nil {
		return amm.Reserves{}, err
	}
	shares, err := r.Supply(ctx, accounts.PoolMint)
	if err != nil {
		return amm.Reserves{}, err
	}
	return amm.Reserves{A: a, B: b, Shares: shares}, nil
}

func narrow(label string, v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 {
		return 0, fmt.Errorf("%s is invalid", label)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s %s: %w", label, v.String(), amm.ErrOverflow)
	}
	return v.Uint64(), nil
}
