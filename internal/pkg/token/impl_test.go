package token_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/banka/internal/pkg/token"
)

func TestMintAuthority(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("GT", 18, "store")

	err := ledger.Mint("mallory", "mallory", big.NewInt(100))
	assert.ErrorIs(t, err, token.ErrNotMinter)
	assert.Equal(t, "0", ledger.TotalSupply().String())

	err = ledger.Mint("store", "alice", big.NewInt(100))
	require.NoError(t, err)

	assert.Equal(t, "100", ledger.BalanceOf("alice").String())
	assert.Equal(t, "100", ledger.TotalSupply().String())
}

func TestMintValidation(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("GT", 18, "store")

	err := ledger.Mint("store", "", big.NewInt(100))
	assert.ErrorIs(t, err, token.ErrZeroAddress)

	err = ledger.Mint("store", "alice", big.NewInt(0))
	assert.ErrorIs(t, err, token.ErrInvalidAmount)

	err = ledger.Mint("store", "alice", big.NewInt(-1))
	assert.ErrorIs(t, err, token.ErrInvalidAmount)
}

func TestSetMinter(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("GT", 18, "store")

	err := ledger.SetMinter("mallory", "mallory")
	assert.ErrorIs(t, err, token.ErrNotMinter)

	err = ledger.SetMinter("store", "treasury")
	require.NoError(t, err)

	assert.Equal(t, "treasury", ledger.Minter())

	err = ledger.Mint("store", "alice", big.NewInt(1))
	assert.ErrorIs(t, err, token.ErrNotMinter)

	err = ledger.Mint("treasury", "alice", big.NewInt(1))
	assert.NoError(t, err)
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("GT", 18, "store")

	err := ledger.Mint("store", "alice", big.NewInt(100))
	require.NoError(t, err)

	err = ledger.Transfer("alice", "bob", big.NewInt(101))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Equal(t, "100", ledger.BalanceOf("alice").String())
	assert.Equal(t, "0", ledger.BalanceOf("bob").String())

	err = ledger.Transfer("alice", "bob", big.NewInt(40))
	require.NoError(t, err)

	assert.Equal(t, "60", ledger.BalanceOf("alice").String())
	assert.Equal(t, "40", ledger.BalanceOf("bob").String())
	assert.Equal(t, "100", ledger.TotalSupply().String())
}

func TestTransferFrom(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("ST", 6, "store")

	err := ledger.Mint("store", "alice", big.NewInt(100))
	require.NoError(t, err)

	err = ledger.TransferFrom("store", "alice", "store", big.NewInt(50))
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	err = ledger.Approve("alice", "store", big.NewInt(50))
	require.NoError(t, err)

	err = ledger.TransferFrom("store", "alice", "store", big.NewInt(60))
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	err = ledger.TransferFrom("store", "alice", "store", big.NewInt(30))
	require.NoError(t, err)

	assert.Equal(t, "70", ledger.BalanceOf("alice").String())
	assert.Equal(t, "30", ledger.BalanceOf("store").String())
	assert.Equal(t, "20", ledger.Allowance("alice", "store").String())
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	t.Parallel()

	ledger := token.NewLedger("ST", 6, "store")

	err := ledger.Mint("store", "alice", big.NewInt(10))
	require.NoError(t, err)

	err = ledger.Approve("alice", "store", big.NewInt(100))
	require.NoError(t, err)

	err = ledger.TransferFrom("store", "alice", "store", big.NewInt(50))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)

	// Failed pull must not burn allowance.
	assert.Equal(t, "100", ledger.Allowance("alice", "store").String())
	assert.Equal(t, "10", ledger.BalanceOf("alice").String())
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	amount, err := token.ParseAmount("10000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", amount.String())

	_, err = token.ParseAmount("0")
	assert.ErrorIs(t, err, token.ErrInvalidAmount)

	_, err = token.ParseAmount("-5")
	assert.ErrorIs(t, err, token.ErrInvalidAmount)

	_, err = token.ParseAmount("ten")
	assert.ErrorIs(t, err, token.ErrInvalidAmount)
}
