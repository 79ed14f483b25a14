package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

// PoolStats stores journal totals for a pool window. Sums are decimal strings
// because they can exceed uint64.
type PoolStats struct {
	Pool            common.Address `json:"pool"`
	WindowSizeSecs  int64          `json:"window_size_seconds"`
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	SwapCount       uint64         `json:"swap_count"`
	DepositCount    uint64         `json:"deposit_count"`
	WithdrawCount   uint64         `json:"withdraw_count"`
	VolumeIn        string         `json:"volume_in"`
	VolumeOut       string         `json:"volume_out"`
	RetainedFee     string         `json:"retained_fee"`
	DepositedA      string         `json:"deposited_a"`
	DepositedB      string         `json:"deposited_b"`
	WithdrawnA      string         `json:"withdrawn_a"`
	WithdrawnB      string         `json:"withdrawn_b"`
	SharesMinted    string         `json:"shares_minted"`
	SharesBurned    string         `json:"shares_burned"`
	TipShares       string         `json:"tip_shares"`
	ClosingReserves amm.Reserves   `json:"closing_reserves"`
	FeeRate         *string        `json:"fee_rate,omitempty"`
	APR             *string        `json:"apr,omitempty"`
	LastSeq         uint64         `json:"last_seq"`
}
