package exchange

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bob      = common.HexToAddress("0x3000000000000000000000000000000000000003")
	mintA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	mintB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	poolMint = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

type captureJournal struct {
	mu      sync.Mutex
	records []model.OperationRecord
}

func (j *captureJournal) PutOperations(ctx context.Context, records []model.OperationRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, records...)
	return nil
}

type harness struct {
	ex      *Exchange
	ledger  *ledger.Memory
	store   *storage.MemoryStore
	journal *captureJournal
	pool    amm.Pool
}

func newHarness(t *testing.T, tipNum, tipDenom uint64) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		ledger:  ledger.NewMemory(nil),
		store:   storage.NewMemoryStore(),
		journal: &captureJournal{},
	}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ex, err := New(Config{Now: func() time.Time { return fixed }}, h.ledger, h.store, h.journal, nil)
	require.NoError(t, err)
	h.ex = ex

	for _, holder := range []common.Address{alice, bob} {
		require.NoError(t, h.ledger.Credit(mintA, holder, 10_000_000_000))
		require.NoError(t, h.ledger.Credit(mintB, holder, 10_000_000_000))
	}

	_, err = ex.CreateMarket(ctx, owner, 997, 1000)
	require.NoError(t, err)
	h.pool, err = ex.CreatePool(ctx, owner, amm.PoolParams{
		MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: tipNum, ProtocolTipDen: tipDenom,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) balance(t *testing.T, asset, holder common.Address) uint64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), asset, holder)
	require.NoError(t, err)
	return b
}

func (h *harness) assertInvariants(t *testing.T) amm.Reserves {
	t.Helper()
	ctx := context.Background()

	pool, err := h.ex.Pool(ctx, h.pool.ID)
	require.NoError(t, err)
	supply, err := h.ledger.Supply(ctx, poolMint)
	require.NoError(t, err)
	require.Equal(t, supply, pool.SharesOutstanding, "ledger supply must match pool")

	r, err := h.ex.Reserves(ctx, h.pool.ID)
	require.NoError(t, err)
	require.NoError(t, r.Check())

	totalA, _ := h.ledger.Supply(ctx, mintA)
	totalB, _ := h.ledger.Supply(ctx, mintB)
	require.Equal(t, uint64(20_000_000_000), totalA)
	require.Equal(t, uint64(20_000_000_000), totalB)
	require.Equal(t, totalA, h.balance(t, mintA, alice)+h.balance(t, mintA, bob)+r.A)
	require.Equal(t, totalB, h.balance(t, mintB, alice)+h.balance(t, mintB, bob)+r.B)
	return r
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 20, 100)

	dep, err := h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: alice, AmountA: 4_000_000_000, AmountB: 4_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000_000_000), dep.Minted)

	dep, err = h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: bob, AmountA: 2_000_000_000, AmountB: 2_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), dep.Minted)
	h.assertInvariants(t)

	wd, err := h.ex.RemoveLiquidity(ctx, h.pool.ID, WithdrawOrder{Provider: bob, Burn: 2_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000_000), wd.Tip)
	assert.Equal(t, uint64(1_600_000_000), wd.ReturnA)
	assert.Equal(t, uint64(400_000_000), h.balance(t, poolMint, h.pool.FeeReserve))
	assert.Zero(t, h.balance(t, poolMint, bob))

	before := h.assertInvariants(t)
	sw, err := h.ex.Swap(ctx, h.pool.ID, SwapOrder{Trader: bob, AmountIn: 1_000_000})
	require.NoError(t, err)
	after := h.assertInvariants(t)
	assert.Equal(t, before.A+1_000_000, after.A)
	assert.Equal(t, before.B-sw.AmountOut, after.B)

	ops := make([]string, 0, len(h.journal.records))
	for i, record := range h.journal.records {
		assert.Equal(t, uint64(i+1), record.Seq)
		assert.Equal(t, uint64(1704067200), record.Timestamp)
		ops = append(ops, record.Op)
	}
	assert.Equal(t, []string{
		model.OpCreateMarket, model.OpCreatePool,
		model.OpProvideLiquidity, model.OpProvideLiquidity,
		model.OpRemoveLiquidity, model.OpSwap,
	}, ops)

	last := h.journal.records[len(h.journal.records)-1]
	assert.Equal(t, h.pool.ID, last.Pool)
	assert.Equal(t, sw.RetainedFee(), last.RetainedFee)
	assert.Equal(t, after, last.Reserves)
}

func TestInvariantsHoldOverRandomSequence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 1000)
	rng := rand.New(rand.NewSource(7))
	actors := []common.Address{alice, bob}

	_, err := h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: alice, AmountA: 1_000_000, AmountB: 3_000_000})
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		actor := actors[rng.Intn(len(actors))]
		before := h.assertInvariants(t)

		switch rng.Intn(3) {
		case 0:
			amountA := uint64(rng.Int63n(500_000) + 1)
			_, err = h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: actor, AmountA: amountA, AmountB: amountA * 4})
		case 1:
			shares := h.balance(t, poolMint, actor)
			if shares == 0 {
				continue
			}
			_, err = h.ex.RemoveLiquidity(ctx, h.pool.ID, WithdrawOrder{Provider: actor, Burn: uint64(rng.Int63n(int64(shares))) + 1})
		default:
			_, err = h.ex.Swap(ctx, h.pool.ID, SwapOrder{Trader: actor, AmountIn: uint64(rng.Int63n(200_000) + 1)})
			if err == nil {
				after := h.assertInvariants(t)
				assert.GreaterOrEqual(t, after.A*after.B, before.A*before.B, "step %d", i)
			}
		}

		if err != nil {
			var known bool
			for _, kind := range []error{
				amm.ErrInsufficientLiquidityProvided,
				amm.ErrInsufficientLiquidityPresent,
				amm.ErrInsufficientTokenBalance,
			} {
				known = known || errors.Is(err, kind)
			}
			require.True(t, known, "step %d: unexpected error %v", i, err)
		}
	}
	h.assertInvariants(t)
}

func TestSupplyMismatchIsDetected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0, 1)

	_, err := h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: alice, AmountA: 100, AmountB: 100})
	require.NoError(t, err)

	pool, err := h.store.Pool(ctx, h.pool.ID)
	require.NoError(t, err)
	pool.SharesOutstanding++
	require.NoError(t, h.store.PutPool(ctx, pool))

	_, err = h.ex.Swap(ctx, h.pool.ID, SwapOrder{Trader: bob, AmountIn: 10})
	require.ErrorIs(t, err, ErrSupplyMismatch)
}

type failingLedger struct {
	*ledger.Memory
}

func (failingLedger) Execute(ctx context.Context, instructions []amm.Instruction) error {
	return errors.New("ledger offline")
}

func TestLedgerFailureLeavesPoolUntouched(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory(nil)
	require.NoError(t, mem.Credit(mintA, alice, 1000))
	require.NoError(t, mem.Credit(mintB, alice, 1000))

	store := storage.NewMemoryStore()
	journal := &captureJournal{}
	ex, err := New(Config{}, failingLedger{mem}, store, journal, nil)
	require.NoError(t, err)

	_, err = ex.CreateMarket(ctx, owner, 997, 1000)
	require.NoError(t, err)
	pool, err := ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.NoError(t, err)

	_, err = ex.ProvideLiquidity(ctx, pool.ID, DepositOrder{Provider: alice, AmountA: 100, AmountB: 100})
	require.Error(t, err)

	stored, err := store.Pool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.SharesOutstanding)
	assert.Len(t, journal.records, 2, "only the creations are journaled")
}

func TestCreationErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0, 1)

	_, err := h.ex.CreateMarket(ctx, owner, 997, 1000)
	require.ErrorIs(t, err, ErrMarketExists)

	_, err = h.ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = h.ex.CreatePool(ctx, alice, amm.PoolParams{MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, ErrMarketNotFound)

	_, err = h.ex.CreateMarket(ctx, alice, 1, 0)
	require.ErrorIs(t, err, amm.ErrInvalidFee)

	_, err = h.ex.Swap(ctx, common.HexToAddress("0xdead"), SwapOrder{Trader: alice, AmountIn: 1})
	require.ErrorIs(t, err, ErrPoolNotFound)

	// another market cannot claim a pool mint that is already controlled.
	_, err = h.ex.CreateMarket(ctx, alice, 997, 1000)
	require.NoError(t, err)
	_, err = h.ex.CreatePool(ctx, alice, amm.PoolParams{MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestCreatePoolRejectsSharedPoolMint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0, 1)
	mintC := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	otherShares := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	_, err := h.ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintC, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = h.ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintC, PoolMint: mintB, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, amm.ErrInvalidPool)

	// the first pool keeps working once funded.
	_, err = h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: alice, AmountA: 1000, AmountB: 1000})
	require.NoError(t, err)
	h.assertInvariants(t)

	pools, err := h.store.Pools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)

	// a rejected creation leaves no mint registration behind.
	require.NoError(t, h.ledger.Credit(otherShares, bob, 1))
	_, err = h.ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintC, PoolMint: otherShares, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.ErrorIs(t, err, ErrSupplyMismatch)
	require.NoError(t, h.ledger.RegisterMint(otherShares, bob))
}

type brokenJournal struct {
	mu   sync.Mutex
	fail bool
}

func (j *brokenJournal) PutOperations(ctx context.Context, records []model.OperationRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestJournalFailureIsNotReportedAsRejection(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	mem := ledger.NewMemory(nil)
	require.NoError(t, mem.Credit(mintA, alice, 10_000))
	require.NoError(t, mem.Credit(mintB, alice, 10_000))

	journal := &brokenJournal{}
	store := storage.NewMemoryStore()
	ex, err := New(Config{}, mem, store, journal, zap.New(core))
	require.NoError(t, err)

	_, err = ex.CreateMarket(ctx, owner, 997, 1000)
	require.NoError(t, err)
	pool, err := ex.CreatePool(ctx, owner, amm.PoolParams{MintA: mintA, MintB: mintB, PoolMint: poolMint, ProtocolTipNum: 0, ProtocolTipDen: 1})
	require.NoError(t, err)

	journal.fail = true
	_, err = ex.ProvideLiquidity(ctx, pool.ID, DepositOrder{Provider: alice, AmountA: 1000, AmountB: 1000})
	require.ErrorIs(t, err, ErrNotRecorded)

	stored, err := store.Pool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), stored.SharesOutstanding, "the deposit was applied")
	assert.Zero(t, logs.FilterMessage("operation rejected").Len())
	assert.Equal(t, 1, logs.FilterMessage("operation applied but not journaled").Len())
}

func TestConcurrentSwapsAreSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0, 1)

	_, err := h.ex.ProvideLiquidity(ctx, h.pool.ID, DepositOrder{Provider: alice, AmountA: 5_000_000_000, AmountB: 5_000_000_000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := h.ex.Swap(ctx, h.pool.ID, SwapOrder{Trader: bob, AmountIn: 1000})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	r := h.assertInvariants(t)
	assert.Equal(t, uint64(5_000_000_000+16*20*1000), r.A)
	assert.Len(t, h.journal.records, 2+1+16*20)
}
