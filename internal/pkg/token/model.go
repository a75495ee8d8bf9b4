package token

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidAmount         = errors.New("amount must be a positive integer")
	ErrZeroAddress           = errors.New("account must not be empty")
	ErrNotMinter             = errors.New("caller is not the minter")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// ParseAmount parses a decimal string into a positive base-unit amount.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	return amount, nil
}
