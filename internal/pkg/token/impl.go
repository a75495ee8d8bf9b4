package token

import (
	"fmt"
	"math/big"
	"sync"
)

// Ledger is a single-minter fungible token balance ledger. All amounts
// are non-negative integers in base units; every mutation is atomic
// under one lock, so the sum of balances always equals the total
// supply.
type Ledger struct {
	mu sync.Mutex

	name     string
	decimals int
	minter   string

	supply     *big.Int
	balances   map[string]*big.Int
	allowances map[string]map[string]*big.Int
}

func NewLedger(name string, decimals int, minter string) *Ledger {
	return &Ledger{
		name:     name,
		decimals: decimals,
		minter:   minter,

		supply:     new(big.Int),
		balances:   map[string]*big.Int{},
		allowances: map[string]map[string]*big.Int{},
	}
}

func (l *Ledger) Name() string {
	return l.name
}

func (l *Ledger) Decimals() int {
	return l.decimals
}

func (l *Ledger) Minter() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.minter
}

// SetMinter hands the mint authority to next. Only the current minter
// may call it.
func (l *Ledger) SetMinter(caller, next string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller)
	}

	if len(next) == 0 {
		return ErrZeroAddress
	}

	l.minter = next

	return nil
}

func (l *Ledger) Mint(caller, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller)
	}

	if len(to) == 0 {
		return ErrZeroAddress
	}

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.credit(to, amount)
	l.supply.Add(l.supply, amount)

	return nil
}

func (l *Ledger) Transfer(from, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.transfer(from, to, amount)
}

// TransferFrom moves amount from owner to to, spending spender's
// allowance. The allowance is checked and decremented before the
// balance moves; on any failure nothing changes.
func (l *Ledger) TransferFrom(spender, owner, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	allowance := l.allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s to spend %s, need %s",
			ErrInsufficientAllowance, owner, spender, allowance, amount)
	}

	err := l.transfer(owner, to, amount)
	if err != nil {
		return err
	}

	l.allowances[owner][spender] = new(big.Int).Sub(allowance, amount)

	return nil
}

func (l *Ledger) Approve(owner, spender string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(spender) == 0 {
		return ErrZeroAddress
	}

	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	if l.allowances[owner] == nil {
		l.allowances[owner] = map[string]*big.Int{}
	}

	l.allowances[owner][spender] = new(big.Int).Set(amount)

	return nil
}

func (l *Ledger) Allowance(owner, spender string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.allowance(owner, spender))
}

func (l *Ledger) BalanceOf(account string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.balance(account))
}

func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.supply)
}

func (l *Ledger) transfer(from, to string, amount *big.Int) error {
	if len(to) == 0 {
		return ErrZeroAddress
	}

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	balance := l.balance(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, need %s",
			ErrInsufficientBalance, from, balance, amount)
	}

	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.credit(to, amount)

	return nil
}

func (l *Ledger) credit(to string, amount *big.Int) {
	l.balances[to] = new(big.Int).Add(l.balance(to), amount)
}

func (l *Ledger) balance(account string) *big.Int {
	balance := l.balances[account]
	if balance == nil {
		return new(big.Int)
	}

	return balance
}

func (l *Ledger) allowance(owner, spender string) *big.Int {
	spenders := l.allowances[owner]
	if spenders == nil {
		return new(big.Int)
	}

	allowance := spenders[spender]
	if allowance == nil {
		return new(big.Int)
	}

	return allowance
}
