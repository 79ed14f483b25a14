package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SwapQuote is the pricing of an A-for-B swap.
type SwapQuote struct {
	AmountIn    uint64 `json:"amount_in"`
	EffectiveIn uint64 `json:"effective_in"`
	AmountOut   uint64 `json:"amount_out"`
}

// RetainedFee is the part of the input that does not count toward pricing.
// It stays in reserve A.
func (q SwapQuote) RetainedFee() uint64 {
	return q.AmountIn - q.EffectiveIn
}

// QuoteSwap prices amountIn of asset A with the constant-product formula:
//
//	effectiveIn = floor(fee * amountIn)
//	amountOut   = floor(B * effectiveIn / (A + effectiveIn))
func QuoteSwap(fee Fraction, r Reserves, amountIn uint64) (SwapQuote, error) {
	if amountIn == 0 {
		return SwapQuote{}, ErrDepositAmountIsZero
	}
	if err := r.Check(); err != nil {
		return SwapQuote{}, err
	}
	if r.Empty() {
		return SwapQuote{}, fmt.Errorf("%w: pool is empty", ErrInsufficientLiquidityPresent)
	}

	effectiveIn, err := mulDiv(fee.Num, amountIn, fee.Denom)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("effective input: %w", err)
	}
	if effectiveIn > amountIn {
		return SwapQuote{}, fmt.Errorf("%w: trading fee %s exceeds one", ErrInvalidFee, fee)
	}
	denominator, err := checkedAdd(r.A, effectiveIn)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("swap denominator: %w", err)
	}
	amountOut, err := mulDiv(r.B, effectiveIn, denominator)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("amount out: %w", err)
	}
	if amountOut >= r.B {
		return SwapQuote{}, fmt.Errorf("%w: out %d, reserve %d", ErrInsufficientLiquidityPresent, amountOut, r.B)
	}

	return SwapQuote{AmountIn: amountIn, EffectiveIn: effectiveIn, AmountOut: amountOut}, nil
}

// SwapRequest is a trader's A-for-B swap together with the balance it was read against.
type SwapRequest struct {
	Trader       common.Address
	AmountIn     uint64
	BalanceA     uint64
	MinAmountOut uint64
}

// SwapResult is an accepted swap and the ledger work it requires.
type SwapResult struct {
	SwapQuote
	Instructions []Instruction `json:"instructions"`
	Next         Reserves      `json:"next"`
}

// Swap validates and prices an exchange of asset A for asset B against p. The
// whole input is deposited, so the retained fee accrues to liquidity providers.
func Swap(m Market, p Pool, r Reserves, proof AuthorityProof, req SwapRequest) (SwapResult, error) {
	if err := p.authorize(m, proof); err != nil {
		return SwapResult{}, err
	}
	if req.AmountIn == 0 {
		return SwapResult{}, ErrDepositAmountIsZero
	}
	if req.AmountIn > req.BalanceA {
		return SwapResult{}, fmt.Errorf("%w: amount %d, balance %d", ErrInsufficientTokenBalance, req.AmountIn, req.BalanceA)
	}

	q, err := QuoteSwap(m.TradingFee, r, req.AmountIn)
	if err != nil {
		return SwapResult{}, err
	}
	if q.AmountOut < req.MinAmountOut {
		return SwapResult{}, fmt.Errorf("%w: out %d, minimum %d", ErrInsufficientReturnedAmount, q.AmountOut, req.MinAmountOut)
	}

	next := Reserves{Shares: r.Shares}
	if next.A, err = checkedAdd(r.A, q.AmountIn); err != nil {
		return SwapResult{}, fmt.Errorf("reserve a: %w", err)
	}
	if next.B, err = checkedSub(r.B, q.AmountOut); err != nil {
		return SwapResult{}, fmt.Errorf("reserve b: %w", err)
	}

	pl := newPlan(proof)
	pl.transfer(p.MintA, req.Trader, p.ReserveA, q.AmountIn)
	pl.release(p.MintB, p.ReserveB, req.Trader, q.AmountOut)

	return SwapResult{SwapQuote: q, Instructions: pl.items, Next: next}, nil
}
