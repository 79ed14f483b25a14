package model

import (
	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

// Operation names shared by journal records and replay commands.
const (
	OpCreateMarket     = "create_market"
	OpCreatePool       = "create_pool"
	OpFund             = "fund"
	OpProvideLiquidity = "provide_liquidity"
	OpRemoveLiquidity  = "remove_liquidity"
	OpSwap             = "swap"
)

// OperationRecord is one applied exchange operation as written to the journal.
// Amounts are encoded as decimal strings.
type OperationRecord struct {
	Seq          uint64            `json:"seq"`
	Op           string            `json:"op"`
	Authority    common.Address    `json:"authority"`
	Pool         common.Address    `json:"pool"`
	Caller       common.Address    `json:"caller"`
	AmountInA    uint64            `json:"amount_in_a,string"`
	AmountInB    uint64            `json:"amount_in_b,string"`
	AmountOutA   uint64            `json:"amount_out_a,string"`
	AmountOutB   uint64            `json:"amount_out_b,string"`
	SharesMinted uint64            `json:"shares_minted,string"`
	SharesBurned uint64            `json:"shares_burned,string"`
	TipShares    uint64            `json:"tip_shares,string"`
	RetainedFee  uint64            `json:"retained_fee,string"`
	Reserves     amm.Reserves      `json:"reserves"`
	Instructions []amm.Instruction `json:"instructions,omitempty"`
	Timestamp    uint64            `json:"timestamp"`
	RecordedAt   string            `json:"recorded_at"`
}
