package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	poolSeed       = "pool"
	reserveASeed   = "reserve_a"
	reserveBSeed   = "reserve_b"
	feeReserveSeed = "fee_reserve"
)

// Pool is the persisted state of one asset pair.
type Pool struct {
	ID                common.Address `json:"id"`
	Authority         common.Address `json:"authority"`
	ReserveA          common.Address `json:"reserve_a"`
	ReserveB          common.Address `json:"reserve_b"`
	MintA             common.Address `json:"mint_a"`
	MintB             common.Address `json:"mint_b"`
	PoolMint          common.Address `json:"pool_mint"`
	FeeReserve        common.Address `json:"fee_reserve"`
	ProtocolTip       Fraction       `json:"protocol_tip"`
	SharesOutstanding uint64         `json:"shares_outstanding"`
}

// PoolParams describes a pool to create.
type PoolParams struct {
	MintA          common.Address
	MintB          common.Address
	PoolMint       common.Address
	ProtocolTipNum uint64
	ProtocolTipDen uint64
}

// CreatePool builds an empty pool whose custody accounts are held by authority.
func CreatePool(authority common.Address, params PoolParams) (Pool, error) {
	tip := Fraction{Num: params.ProtocolTipNum, Denom: params.ProtocolTipDen}
	if !tip.Valid() {
		return Pool{}, fmt.Errorf("%w: protocol tip %s", ErrInvalidPool, tip)
	}
	if authority == (common.Address{}) {
		return Pool{}, fmt.Errorf("%w: authority is required", ErrInvalidPool)
	}
	zero := common.Address{}
	if params.MintA == zero || params.MintB == zero || params.PoolMint == zero {
		return Pool{}, fmt.Errorf("%w: mints are required", ErrInvalidPool)
	}
	if params.MintA == params.MintB || params.MintA == params.PoolMint || params.MintB == params.PoolMint {
		return Pool{}, fmt.Errorf("%w: mints must be distinct", ErrInvalidPool)
	}

	id := PoolID(authority, params.MintA, params.MintB, params.PoolMint)
	return Pool{
		ID:          id,
		Authority:   authority,
		ReserveA:    deriveAddress(reserveASeed, id.Bytes()),
		ReserveB:    deriveAddress(reserveBSeed, id.Bytes()),
		MintA:       params.MintA,
		MintB:       params.MintB,
		PoolMint:    params.PoolMint,
		FeeReserve:  deriveAddress(feeReserveSeed, id.Bytes()),
		ProtocolTip: tip,
	}, nil
}

// PoolID returns the identifier CreatePool assigns to the pool for these mints.
func PoolID(authority, mintA, mintB, poolMint common.Address) common.Address {
	return deriveAddress(poolSeed, authority.Bytes(), mintA.Bytes(), mintB.Bytes(), poolMint.Bytes())
}

// Reserves is a snapshot of the on-ledger quantities an operation reads.
type Reserves struct {
	A      uint64 `json:"a"`
	B      uint64 `json:"b"`
	Shares uint64 `json:"shares"`
}

// Empty reports whether the pool has never been funded.
func (r Reserves) Empty() bool {
	return r.A == 0 && r.B == 0 && r.Shares == 0
}

// Check enforces that either every quantity is zero or every quantity is positive.
func (r Reserves) Check() error {
	if r.Empty() || (r.A > 0 && r.B > 0 && r.Shares > 0) {
		return nil
	}
	return fmt.Errorf("%w: a=%d b=%d shares=%d", ErrInvalidPoolState, r.A, r.B, r.Shares)
}

func (p Pool) authorize(m Market, proof AuthorityProof) error {
	if p.Authority != m.Authority {
		return fmt.Errorf("%w: pool %s belongs to authority %s", ErrUnauthorized, p.ID.Hex(), p.Authority.Hex())
	}
	return m.verify(proof)
}
