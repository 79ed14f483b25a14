package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the holder's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnauthorized is returned when the signer may not move or mint the funds.
	ErrUnauthorized = errors.New("instruction not authorized")
	// ErrUnknownMint is returned when an instruction names an asset the ledger has never seen.
	ErrUnknownMint = errors.New("unknown mint")
)

type holding struct {
	asset  common.Address
	holder common.Address
}

// Memory is an in-process token ledger. Instructions are applied as one batch:
// either every instruction succeeds or none is visible.
type Memory struct {
	mu         sync.RWMutex
	mints      map[common.Address]common.Address
	custodians map[common.Address]common.Address
	balances   map[holding]uint64
	supply     map[common.Address]uint64
	logger     *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		mints:      make(map[common.Address]common.Address),
		custodians: make(map[common.Address]common.Address),
		balances:   make(map[holding]uint64),
		supply:     make(map[common.Address]uint64),
		logger:     logger,
	}
}

// RegisterMint records authority as the only signer allowed to mint asset.
// A mint created by Credit without an authority can be claimed once.
func (m *Memory) RegisterMint(asset, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.mints[asset]
	switch {
	case !ok || current == (common.Address{}):
		m.mints[asset] = authority
		return nil
	case current == authority:
		return nil
	default:
		return fmt.Errorf("%w: mint %s already controlled by %s", ErrUnauthorized, asset.Hex(), current.Hex())
	}
}

// AssignCustodian lets authority move funds out of holder.
func (m *Memory) AssignCustodian(holder, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.custodians[holder]; ok && current != authority {
		return fmt.Errorf("%w: %s already held by %s", ErrUnauthorized, holder.Hex(), current.Hex())
	}
	m.custodians[holder] = authority
	return nil
}

// Credit issues amount of asset to holder outside of any instruction batch.
// Assets with a registered mint authority can only be minted by instruction.
func (m *Memory) Credit(asset, holder common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.mints[asset]; !ok {
		m.mints[asset] = common.Address{}
	} else if current != (common.Address{}) {
		return fmt.Errorf("%w: mint %s is controlled by %s", ErrUnauthorized, asset.Hex(), current.Hex())
	}
	key := holding{asset: asset, holder: holder}
	balance, err := add(m.balances[key], amount)
	if err != nil {
		return err
	}
	supply, err := add(m.supply[asset], amount)
	if err != nil {
		return err
	}
	m.balances[key] = balance
	m.supply[asset] = supply

	m.logger.Debug("credit",
		zap.String("asset", asset.Hex()),
		zap.String("holder", holder.Hex()),
		zap.Uint64("amount", amount),
	)
	return nil
}

func (m *Memory) Balance(ctx context.Context, asset, holder common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[holding{asset: asset, holder: holder}], nil
}

func (m *Memory) Supply(ctx context.Context, asset common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply[asset], nil
}

// Execute applies instructions in order against a staged view and commits the
// view only when all of them succeed.
func (m *Memory) Execute(ctx context.Context, instructions []amm.Instruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &stage{base: m, balances: make(map[holding]uint64), supply: make(map[common.Address]uint64)}
	for i, in := range instructions {
		if err := st.apply(in); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, in, err)
		}
	}

	for key, balance := range st.balances {
		m.balances[key] = balance
	}
	for asset, supply := range st.supply {
		m.supply[asset] = supply
	}

	m.logger.Debug("executed instructions", zap.Int("count", len(instructions)))
	return nil
}

type stage struct {
	base     *Memory
	balances map[holding]uint64
	supply   map[common.Address]uint64
}

func (s *stage) balance(key holding) uint64 {
	if balance, ok := s.balances[key]; ok {
		return balance
	}
	return s.base.balances[key]
}

func (s *stage) totalSupply(asset common.Address) uint64 {
	if supply, ok := s.supply[asset]; ok {
		return supply
	}
	return s.base.supply[asset]
}

func (s *stage) apply(in amm.Instruction) error {
	mintAuthority, ok := s.base.mints[in.Asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, in.Asset.Hex())
	}

	switch in.Kind {
	case amm.KindMint:
		if mintAuthority == (common.Address{}) || in.AuthorizedBy != mintAuthority {
			return fmt.Errorf("%w: mint signed by %s", ErrUnauthorized, in.AuthorizedBy.Hex())
		}
		return s.credit(in.Asset, in.To, in.Amount, true)
	case amm.KindBurn:
		if err := s.base.authorizeDebit(in.From, in.AuthorizedBy); err != nil {
			return err
		}
		return s.debit(in.Asset, in.From, in.Amount, true)
	case amm.KindTransfer:
		if err := s.base.authorizeDebit(in.From, in.AuthorizedBy); err != nil {
			return err
		}
		if err := s.debit(in.Asset, in.From, in.Amount, false); err != nil {
			return err
		}
		return s.credit(in.Asset, in.To, in.Amount, false)
	default:
		return fmt.Errorf("unknown instruction kind %q", in.Kind)
	}
}

func (s *stage) debit(asset, holder common.Address, amount uint64, burn bool) error {
	key := holding{asset: asset, holder: holder}
	balance := s.balance(key)
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, holder.Hex(), balance, asset.Hex(), amount)
	}
	s.balances[key] = balance - amount
	if burn {
		s.supply[asset] = s.totalSupply(asset) - amount
	}
	return nil
}

func (s *stage) credit(asset, holder common.Address, amount uint64, mint bool) error {
	key := holding{asset: asset, holder: holder}
	balance, err := add(s.balance(key), amount)
	if err != nil {
		return err
	}
	if mint {
		supply, err := add(s.totalSupply(asset), amount)
		if err != nil {
			return err
		}
		s.supply[asset] = supply
	}
	s.balances[key] = balance
	return nil
}

// authorizeDebit accepts the holder itself or the custodian assigned to it.
func (m *Memory) authorizeDebit(holder, signer common.Address) error {
	if signer == (common.Address{}) {
		return fmt.Errorf("%w: missing signer", ErrUnauthorized)
	}
	if signer == holder {
		if _, custodied := m.custodians[holder]; !custodied {
			return nil
		}
	}
	if custodian, ok := m.custodians[holder]; ok && custodian == signer {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move funds of %s", ErrUnauthorized, signer.Hex(), holder.Hex())
}

func add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("balance overflow: %d + %d", a, b)
	}
	return sum, nil
}
