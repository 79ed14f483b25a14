package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InstructionKind names a ledger operation.
type InstructionKind string

const (
	KindTransfer InstructionKind = "transfer"
	KindMint     InstructionKind = "mint"
	KindBurn     InstructionKind = "burn"
)

// Instruction is a balance change the ledger must apply. From is empty for mints
// and To is empty for burns.
type Instruction struct {
	Kind         InstructionKind `json:"kind"`
	Asset        common.Address  `json:"asset"`
	From         common.Address  `json:"from"`
	To           common.Address  `json:"to"`
	Amount       uint64          `json:"amount"`
	AuthorizedBy common.Address  `json:"authorized_by"`
}

func (in Instruction) String() string {
	switch in.Kind {
	case KindMint:
		return fmt.Sprintf("mint %d %s to %s by %s", in.Amount, in.Asset.Hex(), in.To.Hex(), in.AuthorizedBy.Hex())
	case KindBurn:
		return fmt.Sprintf("burn %d %s from %s by %s", in.Amount, in.Asset.Hex(), in.From.Hex(), in.AuthorizedBy.Hex())
	default:
		return fmt.Sprintf("transfer %d %s from %s to %s by %s", in.Amount, in.Asset.Hex(), in.From.Hex(), in.To.Hex(), in.AuthorizedBy.Hex())
	}
}

// plan collects the instructions of one operation, dropping zero amounts.
type plan struct {
	authority common.Address
	items     []Instruction
}

func newPlan(proof AuthorityProof) *plan {
	return &plan{authority: proof.Authority()}
}

// transfer moves the caller's own funds; the caller authorizes it.
func (p *plan) transfer(asset, from, to common.Address, amount uint64) {
	p.add(Instruction{Kind: KindTransfer, Asset: asset, From: from, To: to, Amount: amount, AuthorizedBy: from})
}

// release moves pool-custodied funds under the market authority.
func (p *plan) release(asset, from, to common.Address, amount uint64) {
	p.add(Instruction{Kind: KindTransfer, Asset: asset, From: from, To: to, Amount: amount, AuthorizedBy: p.authority})
}

func (p *plan) mint(asset, to common.Address, amount uint64) {
	p.add(Instruction{Kind: KindMint, Asset: asset, To: to, Amount: amount, AuthorizedBy: p.authority})
}

func (p *plan) burn(asset, from common.Address, amount uint64) {
	p.add(Instruction{Kind: KindBurn, Asset: asset, From: from, Amount: amount, AuthorizedBy: from})
}

func (p *plan) add(in Instruction) {
	if in.Amount == 0 {
		return
	}
	p.items = append(p.items, in)
}
