package amm

import "errors"

var (
	// ErrInsufficientLiquidityProvided is returned when deposit amounts fail the balance or ratio checks.
	ErrInsufficientLiquidityProvided = errors.New("provider has insufficient liquidity")
	// ErrInsufficientLiquidityPresent is returned when a swap would drain the output reserve.
	ErrInsufficientLiquidityPresent = errors.New("reserve does not have enough liquidity")
	// ErrInsufficientLiquidityTokens is returned when a withdrawal exceeds the caller's share balance.
	ErrInsufficientLiquidityTokens = errors.New("provider does not have enough liquidity tokens")
	// ErrInsufficientTokenBalance is returned when swap input exceeds the trader's balance.
	ErrInsufficientTokenBalance = errors.New("trader has insufficient token balance")
	// ErrDepositAmountIsZero is returned for a zero swap input.
	ErrDepositAmountIsZero = errors.New("amount deposited cannot be zero")
	// ErrInsufficientReturnedAmount is returned when a result falls below a caller-supplied minimum.
	ErrInsufficientReturnedAmount = errors.New("insufficient amount will be returned")

	// ErrArithmetic is the kind shared by every arithmetic failure.
	ErrArithmetic = errors.New("arithmetic failure")
	// ErrOverflow is returned when a result does not fit in uint64.
	ErrOverflow error = &arithmeticError{msg: "arithmetic overflow"}
	// ErrDivisionByZero is returned when a denominator is zero.
	ErrDivisionByZero error = &arithmeticError{msg: "division by zero"}

	// ErrInvalidFee is returned for a fee fraction with a zero denominator or a value above one.
	ErrInvalidFee = errors.New("invalid fee fraction")
	// ErrInvalidPool is returned for pool parameters that cannot describe a pool.
	ErrInvalidPool = errors.New("invalid pool parameters")
	// ErrInvalidPoolState is returned when reserves and shares are not all zero or all positive.
	ErrInvalidPoolState = errors.New("pool reserves and shares are inconsistent")
	// ErrUnauthorized is returned when a proof does not speak for the pool's market.
	ErrUnauthorized = errors.New("authority proof does not match market")
)

// arithmeticError lets ErrOverflow and ErrDivisionByZero match ErrArithmetic with errors.Is.
type arithmeticError struct {
	msg string
}

func (e *arithmeticError) Error() string { return e.msg }

func (e *arithmeticError) Is(target error) bool { return target == ErrArithmetic }
