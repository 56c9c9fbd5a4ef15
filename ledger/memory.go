// Package ledger is an in-memory fungible token with ERC-20 transfer and
// allowance rules. It stands in for a real token in tests and local runs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrZeroAddress           = errors.New("ERC20: zero address")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Memory holds balances and allowances of one token.
type Memory struct {
	mu         sync.Mutex
	symbol     string
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

func NewMemory(symbol string) *Memory {
	return &Memory{
		symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *Memory) Symbol() string {
	return m.symbol
}

// Mint credits amount to account.
func (m *Memory) Mint(account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Add(m.balanceOf(account), amount)
}

// Approve lets spender move up to amount of owner's tokens.
func (m *Memory) Approve(owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

func (m *Memory) Allowance(owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowance(owner, spender))
}

func (m *Memory) Balance(account common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceOf(account))
}

// Account returns a view of the token acting as account, the way a contract
// sees the token with itself as msg.sender.
func (m *Memory) Account(account common.Address) *Account {
	return &Account{token: m, self: account}
}

func (m *Memory) balanceOf(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (m *Memory) allowance(owner, spender common.Address) *big.Int {
	if a, ok := m.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}

func (m *Memory) transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ERC20: invalid amount %v", amount)
	}
	bal := m.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientBalance, bal, amount)
	}
	m.balances[from] = new(big.Int).Sub(bal, amount)
	m.balances[to] = new(big.Int).Add(m.balanceOf(to), amount)
	return nil
}

// Account is the token as seen by one spender.
type Account struct {
	token *Memory
	self  common.Address
}

func (a *Account) Address() common.Address {
	return a.self
}

func (a *Account) TransferFrom(_ context.Context, owner, to common.Address, amount *big.Int) error {
	m := a.token
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := m.allowance(owner, a.self)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s, amount %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err := m.transfer(owner, to, amount); err != nil {
		return err
	}
	m.allowances[allowanceKey{owner, a.self}] = new(big.Int).Sub(allowed, amount)
	return nil
}

func (a *Account) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	m := a.token
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer(a.self, to, amount)
}

func (a *Account) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	return a.token.Balance(account), nil
}
