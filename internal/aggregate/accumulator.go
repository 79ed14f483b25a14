package aggregate

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

// Accumulator holds journal totals for a pool window.
type Accumulator struct {
	Pool          common.Address
	WindowStart   uint64
	WindowEnd     uint64
	SwapCount     uint64
	DepositCount  uint64
	WithdrawCount uint64
	VolumeIn      *big.Int
	VolumeOut     *big.Int
	RetainedFee   *big.Int
	DepositedA    *big.Int
	DepositedB    *big.Int
	WithdrawnA    *big.Int
	WithdrawnB    *big.Int
	SharesMinted  *big.Int
	SharesBurned  *big.Int
	TipShares     *big.Int
	Closing       amm.Reserves
	LastSeq       uint64
}

func NewAccumulator(record model.OperationRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Pool:         record.Pool,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeIn:     big.NewInt(0),
		VolumeOut:    big.NewInt(0),
		RetainedFee:  big.NewInt(0),
		DepositedA:   big.NewInt(0),
		DepositedB:   big.NewInt(0),
		WithdrawnA:   big.NewInt(0),
		WithdrawnB:   big.NewInt(0),
		SharesMinted: big.NewInt(0),
		SharesBurned: big.NewInt(0),
		TipShares:    big.NewInt(0),
		LastSeq:      record.Seq,
	}
}

func (a *Accumulator) AddRecord(record model.OperationRecord) error {
	if record.Pool != a.Pool {
		return fmt.Errorf("record for pool %s added to %s", record.Pool.Hex(), a.Pool.Hex())
	}

	switch record.Op {
	case model.OpSwap:
		a.SwapCount++
		addUint(a.VolumeIn, record.AmountInA)
		addUint(a.VolumeOut, record.AmountOutB)
		addUint(a.RetainedFee, record.RetainedFee)
	case model.OpProvideLiquidity:
		a.DepositCount++
		addUint(a.DepositedA, record.AmountInA)
		addUint(a.DepositedB, record.AmountInB)
		addUint(a.SharesMinted, record.SharesMinted)
	case model.OpRemoveLiquidity:
		a.WithdrawCount++
		addUint(a.WithdrawnA, record.AmountOutA)
		addUint(a.WithdrawnB, record.AmountOutB)
		addUint(a.SharesBurned, record.SharesBurned)
		addUint(a.TipShares, record.TipShares)
	case model.OpCreatePool:
	default:
		return fmt.Errorf("unsupported op %q", record.Op)
	}

	if record.Seq >= a.LastSeq {
		a.LastSeq = record.Seq
		a.Closing = record.Reserves
	}
	return nil
}

// Stats renders the window. The fee rate is the retained fee over the closing
// reserve of asset A.
func (a *Accumulator) Stats(windowSeconds uint64) model.PoolStats {
	feeRate := computeRate(a.RetainedFee, new(big.Int).SetUint64(a.Closing.A))
	return model.PoolStats{
		Pool:            a.Pool,
		WindowSizeSecs:  int64(windowSeconds),
		WindowStart:     time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(a.WindowEnd), 0).UTC(),
		SwapCount:       a.SwapCount,
		DepositCount:    a.DepositCount,
		WithdrawCount:   a.WithdrawCount,
		VolumeIn:        a.VolumeIn.String(),
		VolumeOut:       a.VolumeOut.String(),
		RetainedFee:     a.RetainedFee.String(),
		DepositedA:      a.DepositedA.String(),
		DepositedB:      a.DepositedB.String(),
		WithdrawnA:      a.WithdrawnA.String(),
		WithdrawnB:      a.WithdrawnB.String(),
		SharesMinted:    a.SharesMinted.String(),
		SharesBurned:    a.SharesBurned.String(),
		TipShares:       a.TipShares.String(),
		ClosingReserves: a.Closing,
		FeeRate:         feeRate,
		APR:             computeAPR(feeRate, windowSeconds),
		LastSeq:         a.LastSeq,
	}
}

func supportedOp(op string) bool {
	switch op {
	case model.OpSwap, model.OpProvideLiquidity, model.OpRemoveLiquidity, model.OpCreatePool:
		return true
	}
	return false
}

func addUint(target *big.Int, value uint64) {
	if target == nil || value == 0 {
		return
	}
	target.Add(target, new(big.Int).SetUint64(value))
}
