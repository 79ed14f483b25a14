package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DepositQuote is the outcome of a deposit before any balance checks.
type DepositQuote struct {
	Minted   uint64 `json:"minted"`
	DepositA uint64 `json:"deposit_a"`
	DepositB uint64 `json:"deposit_b"`
}

// QuoteDeposit computes the shares minted for amountA/amountB against r.
//
// An empty pool takes both amounts in full and mints sqrt(amountA*amountB).
// Otherwise amountA is taken in full, B is matched to the current ratio and
// must not exceed amountB.
func QuoteDeposit(r Reserves, amountA, amountB uint64) (DepositQuote, error) {
	if err := r.Check(); err != nil {
		return DepositQuote{}, err
	}

	if r.Empty() {
		q := DepositQuote{
			Minted:   sqrtProduct(amountA, amountB),
			DepositA: amountA,
			DepositB: amountB,
		}
		if q.Minted == 0 {
			return DepositQuote{}, fmt.Errorf("%w: initial deposit mints no shares", ErrInsufficientLiquidityProvided)
		}
		return q, nil
	}

	depositA := amountA
	minted, err := mulDiv(depositA, r.Shares, r.A)
	if err != nil {
		return DepositQuote{}, fmt.Errorf("minted shares: %w", err)
	}
	depositB, err := mulDiv(r.B, depositA, r.A)
	if err != nil {
		return DepositQuote{}, fmt.Errorf("matched deposit b: %w", err)
	}
	if depositB > amountB {
		return DepositQuote{}, fmt.Errorf("%w: ratio requires %d of b, offered %d", ErrInsufficientLiquidityProvided, depositB, amountB)
	}
	if minted == 0 {
		return DepositQuote{}, fmt.Errorf("%w: deposit mints no shares", ErrInsufficientLiquidityProvided)
	}

	return DepositQuote{Minted: minted, DepositA: depositA, DepositB: depositB}, nil
}

// DepositRequest is a provider's deposit together with the balances it was read against.
type DepositRequest struct {
	Provider  common.Address
	AmountA   uint64
	AmountB   uint64
	BalanceA  uint64
	BalanceB  uint64
	MinShares uint64
}

// Deposit is an accepted deposit and the ledger work it requires.
type Deposit struct {
	DepositQuote
	Instructions []Instruction `json:"instructions"`
	Next         Reserves      `json:"next"`
}

// ProvideLiquidity validates and prices a deposit into p.
func ProvideLiquidity(m Market, p Pool, r Reserves, proof AuthorityProof, req DepositRequest) (Deposit, error) {
	if err := p.authorize(m, proof); err != nil {
		return Deposit{}, err
	}
	if req.AmountA >= req.BalanceA {
		return Deposit{}, fmt.Errorf("%w: amount a %d, balance %d", ErrInsufficientLiquidityProvided, req.AmountA, req.BalanceA)
	}
	if req.AmountB >= req.BalanceB {
		return Deposit{}, fmt.Errorf("%w: amount b %d, balance %d", ErrInsufficientLiquidityProvided, req.AmountB, req.BalanceB)
	}

	q, err := QuoteDeposit(r, req.AmountA, req.AmountB)
	if err != nil {
		return Deposit{}, err
	}
	if q.Minted < req.MinShares {
		return Deposit{}, fmt.Errorf("%w: minted %d, minimum %d", ErrInsufficientReturnedAmount, q.Minted, req.MinShares)
	}

	var next Reserves
	if next.Shares, err = checkedAdd(r.Shares, q.Minted); err != nil {
		return Deposit{}, fmt.Errorf("shares outstanding: %w", err)
	}
	if next.A, err = checkedAdd(r.A, q.DepositA); err != nil {
		return Deposit{}, fmt.Errorf("reserve a: %w", err)
	}
	if next.B, err = checkedAdd(r.B, q.DepositB); err != nil {
		return Deposit{}, fmt.Errorf("reserve b: %w", err)
	}

	pl := newPlan(proof)
	pl.mint(p.PoolMint, req.Provider, q.Minted)
	pl.transfer(p.MintA, req.Provider, p.ReserveA, q.DepositA)
	pl.transfer(p.MintB, req.Provider, p.ReserveB, q.DepositB)

	return Deposit{DepositQuote: q, Instructions: pl.items, Next: next}, nil
}

// WithdrawQuote is the outcome of redeeming shares before any balance checks.
type WithdrawQuote struct {
	Tip     uint64 `json:"tip"`
	NetBurn uint64 `json:"net_burn"`
	ReturnA uint64 `json:"return_a"`
	ReturnB uint64 `json:"return_b"`
}

// QuoteWithdraw splits burn into the protocol tip and the shares actually
// redeemed, and prices the redeemed shares against r.
func QuoteWithdraw(tip Fraction, r Reserves, burn uint64) (WithdrawQuote, error) {
	if err := r.Check(); err != nil {
		return WithdrawQuote{}, err
	}
	if burn > r.Shares {
		return WithdrawQuote{}, fmt.Errorf("%w: burn %d exceeds outstanding %d", ErrInsufficientLiquidityTokens, burn, r.Shares)
	}

	var (
		q   WithdrawQuote
		err error
	)
	if q.Tip, err = tip.Apply(burn); err != nil {
		return WithdrawQuote{}, fmt.Errorf("protocol tip: %w", err)
	}
	if q.NetBurn, err = checkedSub(burn, q.Tip); err != nil {
		return WithdrawQuote{}, fmt.Errorf("net burn: %w", err)
	}
	if q.ReturnA, err = mulDiv(q.NetBurn, r.A, r.Shares); err != nil {
		return WithdrawQuote{}, fmt.Errorf("return a: %w", err)
	}
	if q.ReturnB, err = mulDiv(q.NetBurn, r.B, r.Shares); err != nil {
		return WithdrawQuote{}, fmt.Errorf("return b: %w", err)
	}
	return q, nil
}

// WithdrawRequest is a provider's redemption together with its share balance.
type WithdrawRequest struct {
	Provider     common.Address
	BurnAmount   uint64
	ShareBalance uint64
	MinReturnA   uint64
	MinReturnB   uint64
}

// Withdrawal is an accepted redemption and the ledger work it requires.
type Withdrawal struct {
	WithdrawQuote
	Instructions []Instruction `json:"instructions"`
	Next         Reserves      `json:"next"`
}

// RemoveLiquidity validates and prices a redemption from p. The tip is paid in
// pool shares to the fee reserve and stays outstanding; only the net amount is burned.
func RemoveLiquidity(m Market, p Pool, r Reserves, proof AuthorityProof, req WithdrawRequest) (Withdrawal, error) {
	if err := p.authorize(m, proof); err != nil {
		return Withdrawal{}, err
	}
	if req.BurnAmount > req.ShareBalance {
		return Withdrawal{}, fmt.Errorf("%w: burn %d, balance %d", ErrInsufficientLiquidityTokens, req.BurnAmount, req.ShareBalance)
	}

	q, err := QuoteWithdraw(p.ProtocolTip, r, req.BurnAmount)
	if err != nil {
		return Withdrawal{}, err
	}
	if q.ReturnA < req.MinReturnA || q.ReturnB < req.MinReturnB {
		return Withdrawal{}, fmt.Errorf("%w: returns %d/%d, minimum %d/%d",
			ErrInsufficientReturnedAmount, q.ReturnA, q.ReturnB, req.MinReturnA, req.MinReturnB)
	}

	var next Reserves
	if next.Shares, err = checkedSub(r.Shares, q.NetBurn); err != nil {
		return Withdrawal{}, fmt.Errorf("shares outstanding: %w", err)
	}
	if next.A, err = checkedSub(r.A, q.ReturnA); err != nil {
		return Withdrawal{}, fmt.Errorf("reserve a: %w", err)
	}
	if next.B, err = checkedSub(r.B, q.ReturnB); err != nil {
		return Withdrawal{}, fmt.Errorf("reserve b: %w", err)
	}

	pl := newPlan(proof)
	pl.burn(p.PoolMint, req.Provider, q.NetBurn)
	pl.transfer(p.PoolMint, req.Provider, p.FeeReserve, q.Tip)
	pl.release(p.MintA, p.ReserveA, req.Provider, q.ReturnA)
	pl.release(p.MintB, p.ReserveB, req.Provider, q.ReturnB)

	return Withdrawal{WithdrawQuote: q, Instructions: pl.items, Next: next}, nil
}
