package exchange

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

// Handler executes one command and returns its result.
type Handler func(ctx context.Context, cmd model.Command) (any, error)

// Faucet is implemented by ledgers that can issue tokens directly.
type Faucet interface {
	Credit(asset, holder common.Address, amount uint64) error
}

// Dispatcher routes commands to handlers by operation name.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher registers the exchange operations. The fund command is only
// available when the exchange ledger is a Faucet.
func NewDispatcher(ex *Exchange) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}

	d.Handle(model.OpCreateMarket, func(ctx context.Context, cmd model.Command) (any, error) {
		return ex.CreateMarket(ctx, cmd.Owner, cmd.FeeNum, cmd.FeeDenom)
	})
	d.Handle(model.OpCreatePool, func(ctx context.Context, cmd model.Command) (any, error) {
		return ex.CreatePool(ctx, cmd.Owner, amm.PoolParams{
			MintA:          cmd.MintA,
			MintB:          cmd.MintB,
			PoolMint:       cmd.PoolMint,
			ProtocolTipNum: cmd.TipNum,
			ProtocolTipDen: cmd.TipDenom,
		})
	})
	d.Handle(model.OpProvideLiquidity, func(ctx context.Context, cmd model.Command) (any, error) {
		return ex.ProvideLiquidity(ctx, PoolRef(cmd), DepositOrder{
			Provider:  cmd.Caller,
			AmountA:   cmd.AmountA,
			AmountB:   cmd.AmountB,
			MinShares: cmd.Min,
		})
	})
	d.Handle(model.OpRemoveLiquidity, func(ctx context.Context, cmd model.Command) (any, error) {
		return ex.RemoveLiquidity(ctx, PoolRef(cmd), WithdrawOrder{
			Provider:   cmd.Caller,
			Burn:       cmd.Amount,
			MinReturnA: cmd.MinA,
			MinReturnB: cmd.MinB,
		})
	})
	d.Handle(model.OpSwap, func(ctx context.Context, cmd model.Command) (any, error) {
		return ex.Swap(ctx, PoolRef(cmd), SwapOrder{
			Trader:       cmd.Caller,
			AmountIn:     cmd.Amount,
			MinAmountOut: cmd.Min,
		})
	})

	if faucet, ok := ex.Ledger().(Faucet); ok {
		d.Handle(model.OpFund, func(ctx context.Context, cmd model.Command) (any, error) {
			if err := faucet.Credit(cmd.Asset, cmd.Caller, cmd.Amount); err != nil {
				return nil, fmt.Errorf("fund: %w", err)
			}
			return cmd.Amount, nil
		})
	}

	return d
}

// Handle registers h for op, replacing any existing handler.
func (d *Dispatcher) Handle(op string, h Handler) {
	d.handlers[op] = h
}

// Ops lists the registered operation names.
func (d *Dispatcher) Ops() []string {
	ops := make([]string, 0, len(d.handlers))
	for op := range d.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd model.Command) (any, error) {
	h, ok := d.handlers[cmd.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Op)
	}
	return h(ctx, cmd)
}

// PoolRef resolves the pool a command addresses: its explicit pool id, or the
// id derived from the owner's market and the three mints.
func PoolRef(cmd model.Command) common.Address {
	if cmd.Pool != (common.Address{}) {
		return cmd.Pool
	}
	return amm.PoolID(amm.DeriveAuthority(cmd.Owner), cmd.MintA, cmd.MintB, cmd.PoolMint)
}
