package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

var (
	// ErrMarketNotFound is returned when no market exists for an authority.
	ErrMarketNotFound = errors.New("market not found")
	// ErrMarketExists is returned when an owner already has a market.
	ErrMarketExists = errors.New("market already exists")
	// ErrPoolNotFound is returned for an unknown pool id.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrPoolExists is returned when a pool id or pool mint is already taken.
	ErrPoolExists = errors.New("pool already exists")
	// ErrSupplyMismatch is returned when the ledger's pool-share supply differs from the stored pool.
	ErrSupplyMismatch = errors.New("pool share supply does not match ledger")
	// ErrUnknownCommand is returned by the dispatcher for an unregistered op.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotRecorded wraps failures that happen after the ledger applied an
	// operation: the balances moved but the store or journal is behind.
	ErrNotRecorded = errors.New("operation applied but not recorded")
)

// Ledger holds the balances the exchange reads and moves. Execute must apply
// all instructions or none of them.
type Ledger interface {
	Balance(ctx context.Context, asset, holder common.Address) (uint64, error)
	Supply(ctx context.Context, asset common.Address) (uint64, error)
	Execute(ctx context.Context, instructions []amm.Instruction) error
}

// Custodian is implemented by ledgers that track who may move funds out of an account.
type Custodian interface {
	AssignCustodian(holder, authority common.Address) error
}

// MintRegistrar is implemented by ledgers that track mint authorities.
type MintRegistrar interface {
	RegisterMint(asset, authority common.Address) error
}

// Config controls exchange behavior.
type Config struct {
	// StartSeq is the last sequence number already in the journal.
	StartSeq uint64
	Now      func() time.Time
}

// Exchange hosts markets and pools. Operations on one pool are serialized;
// each one reads the ledger, prices the request, executes the instructions and
// persists the pool before the lock is released.
type Exchange struct {
	ledger  Ledger
	store   storage.StateStore
	journal storage.Journal
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	locks    map[common.Address]*sync.Mutex
	seq      uint64
	createMu sync.Mutex
}

func New(cfg Config, ledger Ledger, store storage.StateStore, journal storage.Journal, logger *zap.Logger) (*Exchange, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Exchange{
		ledger:  ledger,
		store:   store,
		journal: journal,
		logger:  logger,
		now:     now,
		locks:   make(map[common.Address]*sync.Mutex),
		seq:     cfg.StartSeq,
	}, nil
}

// Ledger returns the ledger the exchange executes against.
func (e *Exchange) Ledger() Ledger {
	return e.ledger
}

// DepositOrder asks to add liquidity to a pool.
type DepositOrder struct {
	Provider  common.Address
	AmountA   uint64
	AmountB   uint64
	MinShares uint64
}

// WithdrawOrder asks to redeem pool shares.
type WithdrawOrder struct {
	Provider   common.Address
	Burn       uint64
	MinReturnA uint64
	MinReturnB uint64
}

// SwapOrder asks to exchange asset A for asset B.
type SwapOrder struct {
	Trader       common.Address
	AmountIn     uint64
	MinAmountOut uint64
}

func (e *Exchange) CreateMarket(ctx context.Context, owner common.Address, feeNum, feeDenom uint64) (amm.Market, error) {
	market, err := amm.CreateMarket(feeNum, feeDenom, owner)
	if err != nil {
		return amm.Market{}, e.reject(model.OpCreateMarket, common.Address{}, err)
	}

	unlock := e.lock(market.Authority)
	defer unlock()

	if _, err := e.store.Market(ctx, market.Authority); err == nil {
		return amm.Market{}, e.reject(model.OpCreateMarket, common.Address{}, fmt.Errorf("%w: %s", ErrMarketExists, market.Authority.Hex()))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return amm.Market{}, fmt.Errorf("load market: %w", err)
	}

	if err := e.store.PutMarket(ctx, market); err != nil {
		return amm.Market{}, fmt.Errorf("persist market: %w", err)
	}

	e.logger.Info("market created",
		zap.String("authority", market.Authority.Hex()),
		zap.String("owner", owner.Hex()),
		zap.Stringer("trading_fee", market.TradingFee),
	)

	return market, e.record(ctx, model.OperationRecord{
		Op:        model.OpCreateMarket,
		Authority: market.Authority,
		Caller:    owner,
	})
}

func (e *Exchange) CreatePool(ctx context.Context, owner common.Address, params amm.PoolParams) (amm.Pool, error) {
	market, err := e.market(ctx, amm.DeriveAuthority(owner))
	if err != nil {
		return amm.Pool{}, e.reject(model.OpCreatePool, common.Address{}, err)
	}
	pool, err := amm.CreatePool(market.Authority, params)
	if err != nil {
		return amm.Pool{}, e.reject(model.OpCreatePool, common.Address{}, err)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()
	unlock := e.lock(pool.ID)
	defer unlock()

	if _, err := e.store.Pool(ctx, pool.ID); err == nil {
		return amm.Pool{}, e.reject(model.OpCreatePool, pool.ID, fmt.Errorf("%w: %s", ErrPoolExists, pool.ID.Hex()))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if err := e.checkPoolMint(ctx, pool); err != nil {
		return amm.Pool{}, e.reject(model.OpCreatePool, pool.ID, err)
	}

	supply, err := e.ledger.Supply(ctx, pool.PoolMint)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("read pool mint supply: %w", err)
	}
	if supply != 0 {
		return amm.Pool{}, e.reject(model.OpCreatePool, pool.ID, fmt.Errorf("%w: pool mint already has supply %d", ErrSupplyMismatch, supply))
	}

	if registrar, ok := e.ledger.(MintRegistrar); ok {
		if err := registrar.RegisterMint(pool.PoolMint, market.Authority); err != nil {
			return amm.Pool{}, e.reject(model.OpCreatePool, pool.ID, fmt.Errorf("register pool mint: %w", err))
		}
	}
	if custodian, ok := e.ledger.(Custodian); ok {
		for _, holder := range []common.Address{pool.ReserveA, pool.ReserveB, pool.FeeReserve} {
			if err := custodian.AssignCustodian(holder, market.Authority); err != nil {
				return amm.Pool{}, e.reject(model.OpCreatePool, pool.ID, fmt.Errorf("assign custodian: %w", err))
			}
		}
	}

	if err := e.store.PutPool(ctx, pool); err != nil {
		return amm.Pool{}, fmt.Errorf("persist pool: %w", err)
	}

	e.logger.Info("pool created",
		zap.String("pool", pool.ID.Hex()),
		zap.String("authority", pool.Authority.Hex()),
		zap.String("mint_a", pool.MintA.Hex()),
		zap.String("mint_b", pool.MintB.Hex()),
		zap.String("pool_mint", pool.PoolMint.Hex()),
		zap.Stringer("protocol_tip", pool.ProtocolTip),
	)

	return pool, e.record(ctx, model.OperationRecord{
		Op:        model.OpCreatePool,
		Authority: pool.Authority,
		Pool:      pool.ID,
		Caller:    owner,
	})
}

func (e *Exchange) ProvideLiquidity(ctx context.Context, poolID common.Address, order DepositOrder) (amm.Deposit, error) {
	unlock := e.lock(poolID)
	defer unlock()

	st, err := e.load(ctx, poolID)
	if err != nil {
		return amm.Deposit{}, e.reject(model.OpProvideLiquidity, poolID, err)
	}
	balanceA, err := e.ledger.Balance(ctx, st.pool.MintA, order.Provider)
	if err != nil {
		return amm.Deposit{}, fmt.Errorf("read balance a: %w", err)
	}
	balanceB, err := e.ledger.Balance(ctx, st.pool.MintB, order.Provider)
	if err != nil {
		return amm.Deposit{}, fmt.Errorf("read balance b: %w", err)
	}

	dep, err := amm.ProvideLiquidity(st.market, st.pool, st.reserves, st.proof(), amm.DepositRequest{
		Provider:  order.Provider,
		AmountA:   order.AmountA,
		AmountB:   order.AmountB,
		BalanceA:  balanceA,
		BalanceB:  balanceB,
		MinShares: order.MinShares,
	})
	if err != nil {
		return amm.Deposit{}, e.reject(model.OpProvideLiquidity, poolID, err)
	}

	record := model.OperationRecord{
		Op:           model.OpProvideLiquidity,
		Caller:       order.Provider,
		AmountInA:    dep.DepositA,
		AmountInB:    dep.DepositB,
		SharesMinted: dep.Minted,
	}
	if err := e.commit(ctx, st, dep.Next, dep.Instructions, record); err != nil {
		if errors.Is(err, ErrNotRecorded) {
			return amm.Deposit{}, err
		}
		return amm.Deposit{}, e.reject(model.OpProvideLiquidity, poolID, err)
	}

	e.logger.Info("liquidity provided",
		zap.String("pool", poolID.Hex()),
		zap.String("provider", order.Provider.Hex()),
		zap.Uint64("deposit_a", dep.DepositA),
		zap.Uint64("deposit_b", dep.DepositB),
		zap.Uint64("minted", dep.Minted),
	)
	return dep, nil
}

func (e *Exchange) RemoveLiquidity(ctx context.Context, poolID common.Address, order WithdrawOrder) (amm.Withdrawal, error) {
	unlock := e.lock(poolID)
	defer unlock()

	st, err := e.load(ctx, poolID)
	if err != nil {
		return amm.Withdrawal{}, e.reject(model.OpRemoveLiquidity, poolID, err)
	}
	shareBalance, err := e.ledger.Balance(ctx, st.pool.PoolMint, order.Provider)
	if err != nil {
		return amm.Withdrawal{}, fmt.Errorf("read share balance: %w", err)
	}

	wd, err := amm.RemoveLiquidity(st.market, st.pool, st.reserves, st.proof(), amm.WithdrawRequest{
		Provider:     order.Provider,
		BurnAmount:   order.Burn,
		ShareBalance: shareBalance,
		MinReturnA:   order.MinReturnA,
		MinReturnB:   order.MinReturnB,
	})
	if err != nil {
		return amm.Withdrawal{}, e.reject(model.OpRemoveLiquidity, poolID, err)
	}

	record := model.OperationRecord{
		Op:           model.OpRemoveLiquidity,
		Caller:       order.Provider,
		AmountOutA:   wd.ReturnA,
		AmountOutB:   wd.ReturnB,
		SharesBurned: wd.NetBurn,
		TipShares:    wd.Tip,
	}
	if err := e.commit(ctx, st, wd.Next, wd.Instructions, record); err != nil {
		if errors.Is(err, ErrNotRecorded) {
			return amm.Withdrawal{}, err
		}
		return amm.Withdrawal{}, e.reject(model.OpRemoveLiquidity, poolID, err)
	}

	e.logger.Info("liquidity removed",
		zap.String("pool", poolID.Hex()),
		zap.String("provider", order.Provider.Hex()),
		zap.Uint64("burned", wd.NetBurn),
		zap.Uint64("tip", wd.Tip),
		zap.Uint64("return_a", wd.ReturnA),
		zap.Uint64("return_b", wd.ReturnB),
	)
	return wd, nil
}

func (e *Exchange) Swap(ctx context.Context, poolID common.Address, order SwapOrder) (amm.SwapResult, error) {
	unlock := e.lock(poolID)
	defer unlock()

	st, err := e.load(ctx, poolID)
	if err != nil {
		return amm.SwapResult{}, e.reject(model.OpSwap, poolID, err)
	}
	balanceA, err := e.ledger.Balance(ctx, st.pool.MintA, order.Trader)
	if err != nil {
		return amm.SwapResult{}, fmt.Errorf("read balance a: %w", err)
	}

	res, err := amm.Swap(st.market, st.pool, st.reserves, st.proof(), amm.SwapRequest{
		Trader:       order.Trader,
		AmountIn:     order.AmountIn,
		BalanceA:     balanceA,
		MinAmountOut: order.MinAmountOut,
	})
	if err != nil {
		return amm.SwapResult{}, e.reject(model.OpSwap, poolID, err)
	}

	record := model.OperationRecord{
		Op:          model.OpSwap,
		Caller:      order.Trader,
		AmountInA:   res.AmountIn,
		AmountOutB:  res.AmountOut,
		RetainedFee: res.RetainedFee(),
	}
	if err := e.commit(ctx, st, res.Next, res.Instructions, record); err != nil {
		if errors.Is(err, ErrNotRecorded) {
			return amm.SwapResult{}, err
		}
		return amm.SwapResult{}, e.reject(model.OpSwap, poolID, err)
	}

	e.logger.Info("swap",
		zap.String("pool", poolID.Hex()),
		zap.String("trader", order.Trader.Hex()),
		zap.Uint64("amount_in", res.AmountIn),
		zap.Uint64("amount_out", res.AmountOut),
		zap.Uint64("retained_fee", res.RetainedFee()),
	)
	return res, nil
}

// Pool returns the stored pool.
func (e *Exchange) Pool(ctx context.Context, id common.Address) (amm.Pool, error) {
	pool, err := e.store.Pool(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return amm.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, id.Hex())
	}
	return pool, err
}

// Reserves reads the current ledger snapshot of a pool.
func (e *Exchange) Reserves(ctx context.Context, id common.Address) (amm.Reserves, error) {
	unlock := e.lock(id)
	defer unlock()

	st, err := e.load(ctx, id)
	if err != nil {
		return amm.Reserves{}, err
	}
	return st.reserves, nil
}

type poolState struct {
	market   amm.Market
	pool     amm.Pool
	reserves amm.Reserves
}

// proof stands for the exchange signing as the market's delegated authority.
func (st poolState) proof() amm.AuthorityProof {
	return amm.ProveAuthority(st.market.Owner)
}

func (e *Exchange) load(ctx context.Context, id common.Address) (poolState, error) {
	pool, err := e.Pool(ctx, id)
	if err != nil {
		return poolState{}, err
	}
	market, err := e.market(ctx, pool.Authority)
	if err != nil {
		return poolState{}, err
	}

	supply, err := e.ledger.Supply(ctx, pool.PoolMint)
	if err != nil {
		return poolState{}, fmt.Errorf("read pool mint supply: %w", err)
	}
	if supply != pool.SharesOutstanding {
		return poolState{}, fmt.Errorf("%w: ledger %d, pool %d", ErrSupplyMismatch, supply, pool.SharesOutstanding)
	}
	reserveA, err := e.ledger.Balance(ctx, pool.MintA, pool.ReserveA)
	if err != nil {
		return poolState{}, fmt.Errorf("read reserve a: %w", err)
	}
	reserveB, err := e.ledger.Balance(ctx, pool.MintB, pool.ReserveB)
	if err != nil {
		return poolState{}, fmt.Errorf("read reserve b: %w", err)
	}

	return poolState{
		market:   market,
		pool:     pool,
		reserves: amm.Reserves{A: reserveA, B: reserveB, Shares: supply},
	}, nil
}

func (e *Exchange) market(ctx context.Context, authority common.Address) (amm.Market, error) {
	market, err := e.store.Market(ctx, authority)
	if errors.Is(err, storage.ErrNotFound) {
		return amm.Market{}, fmt.Errorf("%w: %s", ErrMarketNotFound, authority.Hex())
	}
	return market, err
}

// commit executes the instructions and, only if the ledger accepted them,
// stores the new share count and journals the operation.
func (e *Exchange) commit(ctx context.Context, st poolState, next amm.Reserves, instructions []amm.Instruction, record model.OperationRecord) error {
	if err := e.ledger.Execute(ctx, instructions); err != nil {
		return fmt.Errorf("execute instructions: %w", err)
	}

	st.pool.SharesOutstanding = next.Shares
	if err := e.store.PutPool(ctx, st.pool); err != nil {
		e.logger.Error("pool state diverged from ledger",
			zap.String("pool", st.pool.ID.Hex()),
			zap.Uint64("shares_outstanding", next.Shares),
			zap.Error(err),
		)
		return fmt.Errorf("%w: persist pool: %w", ErrNotRecorded, err)
	}

	record.Authority = st.pool.Authority
	record.Pool = st.pool.ID
	record.Reserves = next
	record.Instructions = instructions
	return e.record(ctx, record)
}

func (e *Exchange) record(ctx context.Context, record model.OperationRecord) error {
	if e.journal == nil {
		return nil
	}

	e.mu.Lock()
	e.seq++
	record.Seq = e.seq
	e.mu.Unlock()

	now := e.now().UTC()
	record.Timestamp = uint64(now.Unix())
	record.RecordedAt = now.Format(time.RFC3339Nano)

	if err := e.journal.PutOperations(ctx, []model.OperationRecord{record}); err != nil {
		e.logger.Error("operation applied but not journaled",
			zap.String("op", record.Op),
			zap.String("pool", record.Pool.Hex()),
			zap.Uint64("seq", record.Seq),
			zap.Error(err),
		)
		return fmt.Errorf("%w: journal operation: %w", ErrNotRecorded, err)
	}
	return nil
}

// checkPoolMint rejects a pool whose share mint is already in use by a stored
// pool, either as that pool's share mint or as one of its assets.
func (e *Exchange) checkPoolMint(ctx context.Context, pool amm.Pool) error {
	pools, err := e.store.Pools(ctx)
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	for _, other := range pools {
		switch pool.PoolMint {
		case other.PoolMint:
			return fmt.Errorf("%w: pool mint %s is used by pool %s", ErrPoolExists, pool.PoolMint.Hex(), other.ID.Hex())
		case other.MintA, other.MintB:
			return fmt.Errorf("%w: pool mint %s is an asset of pool %s", amm.ErrInvalidPool, pool.PoolMint.Hex(), other.ID.Hex())
		}
	}
	return nil
}

func (e *Exchange) lock(id common.Address) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Exchange) reject(op string, pool common.Address, err error) error {
	e.logger.Warn("operation rejected",
		zap.String("op", op),
		zap.String("pool", pool.Hex()),
		zap.Error(err),
	)
	return err
}
