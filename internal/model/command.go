package model

import "github.com/ethereum/go-ethereum/common"

// Command is one line of a replay script. Fields not used by Op are ignored.
type Command struct {
	Op       string         `json:"op"`
	Owner    common.Address `json:"owner"`
	Caller   common.Address `json:"caller"`
	Pool     common.Address `json:"pool"`
	Asset    common.Address `json:"asset"`
	MintA    common.Address `json:"mint_a"`
	MintB    common.Address `json:"mint_b"`
	PoolMint common.Address `json:"pool_mint"`
	FeeNum   uint64         `json:"fee_num"`
	FeeDenom uint64         `json:"fee_denom"`
	TipNum   uint64         `json:"tip_num"`
	TipDenom uint64         `json:"tip_denom"`
	Amount   uint64         `json:"amount"`
	AmountA  uint64         `json:"amount_a"`
	AmountB  uint64         `json:"amount_b"`
	Min      uint64         `json:"min"`
	MinA     uint64         `json:"min_a"`
	MinB     uint64         `json:"min_b"`
}
