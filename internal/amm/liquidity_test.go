package amm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteDepositEmptyPool(t *testing.T) {
	q, err := QuoteDeposit(Reserves{}, 4_000_000_000, 4_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, DepositQuote{Minted: 4_000_000_000, DepositA: 4_000_000_000, DepositB: 4_000_000_000}, q)

	q, err = QuoteDeposit(Reserves{}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), q.Minted, "floor(sqrt(6))")

	_, err = QuoteDeposit(Reserves{}, 0, 100)
	require.ErrorIs(t, err, ErrInsufficientLiquidityProvided)
}

func TestProvideLiquidityRatioMatched(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 0, 1)
	r := Reserves{A: 1000, B: 2000, Shares: 1000}

	got, err := ProvideLiquidity(market, pool, r, proof, DepositRequest{
		Provider: provider,
		AmountA:  100,
		AmountB:  300,
		BalanceA: 1000,
		BalanceB: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, DepositQuote{Minted: 100, DepositA: 100, DepositB: 200}, got.DepositQuote)
	assert.Equal(t, Reserves{A: 1100, B: 2200, Shares: 1100}, got.Next)
	assert.Equal(t, []Instruction{
		{Kind: KindMint, Asset: poolMint, To: provider, Amount: 100, AuthorizedBy: market.Authority},
		{Kind: KindTransfer, Asset: mintA, From: provider, To: pool.ReserveA, Amount: 100, AuthorizedBy: provider},
		{Kind: KindTransfer, Asset: mintB, From: provider, To: pool.ReserveB, Amount: 200, AuthorizedBy: provider},
	}, got.Instructions)
}

func TestProvideLiquidityErrors(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 0, 1)
	funded := Reserves{A: 1000, B: 2000, Shares: 1000}

	testCases := []struct {
		name        string
		reserves    Reserves
		proof       AuthorityProof
		req         DepositRequest
		expectedErr error
	}{
		{
			name:        "ratio mismatch",
			reserves:    funded,
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 100, AmountB: 50, BalanceA: 1000, BalanceB: 1000},
			expectedErr: ErrInsufficientLiquidityProvided,
		},
		{
			name:        "amount equals balance",
			reserves:    funded,
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 1000, AmountB: 2000, BalanceA: 1000, BalanceB: 5000},
			expectedErr: ErrInsufficientLiquidityProvided,
		},
		{
			name:        "amount b exceeds balance",
			reserves:    funded,
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 10, AmountB: 30, BalanceA: 1000, BalanceB: 20},
			expectedErr: ErrInsufficientLiquidityProvided,
		},
		{
			name:        "deposit too small to mint",
			reserves:    Reserves{A: 1000, B: 1000, Shares: 10},
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 50, AmountB: 50, BalanceA: 1000, BalanceB: 1000},
			expectedErr: ErrInsufficientLiquidityProvided,
		},
		{
			name:        "below minimum shares",
			reserves:    funded,
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 100, AmountB: 300, BalanceA: 1000, BalanceB: 1000, MinShares: 101},
			expectedErr: ErrInsufficientReturnedAmount,
		},
		{
			name:        "foreign authority",
			reserves:    funded,
			proof:       ProveAuthority(provider),
			req:         DepositRequest{Provider: provider, AmountA: 100, AmountB: 300, BalanceA: 1000, BalanceB: 1000},
			expectedErr: ErrUnauthorized,
		},
		{
			name:        "inconsistent pool",
			reserves:    Reserves{A: 1000, B: 0, Shares: 1000},
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 100, AmountB: 300, BalanceA: 1000, BalanceB: 1000},
			expectedErr: ErrInvalidPoolState,
		},
		{
			name:        "matched b overflows",
			reserves:    Reserves{A: 1, B: 2, Shares: 1},
			proof:       proof,
			req:         DepositRequest{Provider: provider, AmountA: 1 << 63, AmountB: math.MaxUint64 - 1, BalanceA: math.MaxUint64, BalanceB: math.MaxUint64},
			expectedErr: ErrOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ProvideLiquidity(market, pool, tc.reserves, tc.proof, tc.req)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestArithmeticErrorsShareCategory(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 0, 1)

	_, err := ProvideLiquidity(market, pool, Reserves{A: 1, B: 2, Shares: 1}, proof, DepositRequest{
		Provider: provider,
		AmountA:  1 << 63,
		AmountB:  math.MaxUint64 - 1,
		BalanceA: math.MaxUint64,
		BalanceB: math.MaxUint64,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArithmetic))
	assert.False(t, errors.Is(err, ErrInsufficientLiquidityProvided))
}

func TestRemoveLiquidity(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 20, 100)
	r := Reserves{A: 6_000_000_000, B: 6_000_000_000, Shares: 6_000_000_000}

	got, err := RemoveLiquidity(market, pool, r, proof, WithdrawRequest{
		Provider:     provider,
		BurnAmount:   2_000_000_000,
		ShareBalance: 2_000_000_000,
	})
	require.NoError(t, err)

	assert.Equal(t, WithdrawQuote{
		Tip:     400_000_000,
		NetBurn: 1_600_000_000,
		ReturnA: 1_600_000_000,
		ReturnB: 1_600_000_000,
	}, got.WithdrawQuote)
	assert.Equal(t, Reserves{A: 4_400_000_000, B: 4_400_000_000, Shares: 4_400_000_000}, got.Next)
	assert.Equal(t, []Instruction{
		{Kind: KindBurn, Asset: poolMint, From: provider, Amount: 1_600_000_000, AuthorizedBy: provider},
		{Kind: KindTransfer, Asset: poolMint, From: provider, To: pool.FeeReserve, Amount: 400_000_000, AuthorizedBy: provider},
		{Kind: KindTransfer, Asset: mintA, From: pool.ReserveA, To: provider, Amount: 1_600_000_000, AuthorizedBy: market.Authority},
		{Kind: KindTransfer, Asset: mintB, From: pool.ReserveB, To: provider, Amount: 1_600_000_000, AuthorizedBy: market.Authority},
	}, got.Instructions)
}

func TestRemoveLiquidityZeroTipOmitsTransfer(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 0, 1)

	got, err := RemoveLiquidity(market, pool, Reserves{A: 100, B: 100, Shares: 100}, proof, WithdrawRequest{
		Provider:     provider,
		BurnAmount:   100,
		ShareBalance: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, Reserves{}, got.Next)
	require.Len(t, got.Instructions, 3)
	for _, in := range got.Instructions {
		assert.NotEqual(t, pool.FeeReserve, in.To)
	}
}

func TestRemoveLiquidityErrors(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 20, 100)
	r := Reserves{A: 1000, B: 1000, Shares: 1000}

	_, err := RemoveLiquidity(market, pool, r, proof, WithdrawRequest{Provider: provider, BurnAmount: 10, ShareBalance: 5})
	require.ErrorIs(t, err, ErrInsufficientLiquidityTokens)

	_, err = RemoveLiquidity(market, pool, r, proof, WithdrawRequest{Provider: provider, BurnAmount: 1001, ShareBalance: 2000})
	require.ErrorIs(t, err, ErrInsufficientLiquidityTokens)

	_, err = RemoveLiquidity(market, pool, r, proof, WithdrawRequest{Provider: provider, BurnAmount: 100, ShareBalance: 100, MinReturnA: 81})
	require.ErrorIs(t, err, ErrInsufficientReturnedAmount)

	_, err = RemoveLiquidity(market, pool, r, ProveAuthority(provider), WithdrawRequest{Provider: provider, BurnAmount: 100, ShareBalance: 100})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = RemoveLiquidity(market, pool, Reserves{}, proof, WithdrawRequest{Provider: provider})
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestWithdrawalConservation(t *testing.T) {
	tip := Fraction{Num: 3, Denom: 1000}
	r := Reserves{A: 7919, B: 104729, Shares: 3001}

	for burn := uint64(0); burn <= r.Shares; burn += 7 {
		q, err := QuoteWithdraw(tip, r, burn)
		require.NoError(t, err)

		assert.Equal(t, burn, q.Tip+q.NetBurn)
		assert.LessOrEqual(t, q.ReturnA, r.A)
		assert.LessOrEqual(t, q.ReturnB, r.B)

		// floor rounding never pays out more than the proportional share.
		assert.LessOrEqual(t, q.ReturnA*r.Shares, q.NetBurn*r.A)
		assert.Less(t, q.NetBurn*r.A-q.ReturnA*r.Shares, r.Shares)
		assert.LessOrEqual(t, q.ReturnB*r.Shares, q.NetBurn*r.B)
		assert.Less(t, q.NetBurn*r.B-q.ReturnB*r.Shares, r.Shares)
	}
}

func TestDepositThenWithdrawNeverProfits(t *testing.T) {
	market, pool, proof := newFixture(t, 997, 1000, 0, 1)
	r := Reserves{A: 12_345, B: 67_890, Shares: 20_000}

	dep, err := ProvideLiquidity(market, pool, r, proof, DepositRequest{
		Provider: provider, AmountA: 777, AmountB: 10_000, BalanceA: 100_000, BalanceB: 100_000,
	})
	require.NoError(t, err)

	wd, err := RemoveLiquidity(market, pool, dep.Next, proof, WithdrawRequest{
		Provider: provider, BurnAmount: dep.Minted, ShareBalance: dep.Minted,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, wd.ReturnA, dep.DepositA)
	assert.LessOrEqual(t, wd.ReturnB, dep.DepositB)
	assert.Equal(t, r.Shares, wd.Next.Shares)
}
