package amm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	provider = common.HexToAddress("0x2000000000000000000000000000000000000002")
	mintA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	mintB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	poolMint = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func newFixture(t *testing.T, feeNum, feeDenom, tipNum, tipDenom uint64) (Market, Pool, AuthorityProof) {
	t.Helper()

	market, err := CreateMarket(feeNum, feeDenom, owner)
	require.NoError(t, err)

	pool, err := CreatePool(market.Authority, PoolParams{
		MintA:          mintA,
		MintB:          mintB,
		PoolMint:       poolMint,
		ProtocolTipNum: tipNum,
		ProtocolTipDen: tipDenom,
	})
	require.NoError(t, err)

	return market, pool, ProveAuthority(owner)
}
