package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const authoritySeed = "exchange_authority"

// Market holds the per-market configuration shared by all of its pools.
type Market struct {
	Authority  common.Address `json:"authority"`
	Owner      common.Address `json:"owner"`
	TradingFee Fraction       `json:"trading_fee"`
}

// CreateMarket builds a market owned by owner. tradingFeeNum/tradingFeeDenom is the
// share of every swap input that counts toward pricing.
func CreateMarket(tradingFeeNum, tradingFeeDenom uint64, owner common.Address) (Market, error) {
	fee := Fraction{Num: tradingFeeNum, Denom: tradingFeeDenom}
	if !fee.Valid() {
		return Market{}, fmt.Errorf("%w: trading fee %s", ErrInvalidFee, fee)
	}
	if owner == (common.Address{}) {
		return Market{}, fmt.Errorf("owner is required")
	}
	return Market{
		Authority:  DeriveAuthority(owner),
		Owner:      owner,
		TradingFee: fee,
	}, nil
}

// DeriveAuthority returns the delegated signer address controlled by owner's market.
func DeriveAuthority(owner common.Address) common.Address {
	return deriveAddress(authoritySeed, owner.Bytes())
}

// AuthorityProof is the capability to move funds held under a market authority.
// Only ProveAuthority creates one.
type AuthorityProof struct {
	authority common.Address
}

// ProveAuthority returns the proof for the authority derived from owner.
func ProveAuthority(owner common.Address) AuthorityProof {
	return AuthorityProof{authority: DeriveAuthority(owner)}
}

// Authority returns the address the proof speaks for.
func (p AuthorityProof) Authority() common.Address {
	return p.authority
}

func (m Market) verify(proof AuthorityProof) error {
	if proof.authority == (common.Address{}) || proof.authority != m.Authority {
		return ErrUnauthorized
	}
	return nil
}

func deriveAddress(seed string, parts ...[]byte) common.Address {
	data := make([][]byte, 0, len(parts)+1)
	data = append(data, []byte(seed))
	data = append(data, parts...)
	return common.BytesToAddress(crypto.Keccak256(data...))
}
