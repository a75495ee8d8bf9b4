package store_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/banka/internal/pkg/events"
	"github.com/vreid/banka/internal/pkg/store"
	"github.com/vreid/banka/internal/pkg/token"
)

func newStoreService(rate *big.Int, sink chan<- events.Event) *store.StoreService {
	return &store.StoreService{
		GameLedger:   token.NewLedger("GT", 18, "store"),
		StableLedger: token.NewLedger("ST", 6, "store"),

		Emitter: events.NewEmitter(sink),

		Rate:    rate,
		Owner:   "admin",
		Account: "store",
	}
}

func fund(t *testing.T, s *store.StoreService, buyer string, amount int64) {
	t.Helper()

	err := s.StableLedger.Mint("store", buyer, big.NewInt(amount))
	require.NoError(t, err)

	err = s.StableLedger.Approve(buyer, "store", big.NewInt(amount))
	require.NoError(t, err)
}

func TestQuote(t *testing.T) {
	t.Parallel()

	rate, _ := new(big.Int).SetString("1000000000000000000", 10)
	s := newStoreService(rate, nil)

	// 10 whole stable units at rate 1e18 buy 10 whole game units.
	out, err := s.Quote(big.NewInt(10_000_000))
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", out.String())

	_, err = s.Quote(big.NewInt(0))
	assert.ErrorIs(t, err, token.ErrInvalidAmount)

	_, err = s.Quote(big.NewInt(-1))
	assert.ErrorIs(t, err, token.ErrInvalidAmount)
}

func TestQuoteTruncates(t *testing.T) {
	t.Parallel()

	s := newStoreService(big.NewInt(1), nil)

	// 1_500_000 base units * 1 / 1e6 truncates to 1.
	out, err := s.Quote(big.NewInt(1_500_000))
	require.NoError(t, err)
	assert.Equal(t, "1", out.String())

	// Anything below one whole stable unit rounds to nothing.
	_, err = s.Quote(big.NewInt(999_999))
	assert.ErrorIs(t, err, store.ErrZeroOutput)
}

func TestBuy(t *testing.T) {
	t.Parallel()

	sink := make(chan events.Event, 10)

	rate, _ := new(big.Int).SetString("1000000000000000000", 10)
	s := newStoreService(rate, sink)

	fund(t, s, "alice", 10_000_000)

	out, err := s.Buy("alice", big.NewInt(10_000_000))
	require.NoError(t, err)

	assert.Equal(t, "10000000000000000000", out.String())
	assert.Equal(t, "10000000000000000000", s.GameLedger.BalanceOf("alice").String())
	assert.Equal(t, "0", s.StableLedger.BalanceOf("alice").String())
	assert.Equal(t, "10000000", s.StableLedger.BalanceOf("store").String())

	event := <-sink
	assert.Equal(t, events.TypePurchase, event.Type)
	assert.Equal(t, "alice", event.Account)
	assert.Equal(t, "10000000", event.AmountIn)
	assert.Equal(t, "10000000000000000000", event.AmountOut)
	assert.Equal(t, uint64(1), event.Seq)
}

func TestBuyWithoutAllowance(t *testing.T) {
	t.Parallel()

	rate, _ := new(big.Int).SetString("1000000000000000000", 10)
	s := newStoreService(rate, nil)

	err := s.StableLedger.Mint("store", "alice", big.NewInt(10_000_000))
	require.NoError(t, err)

	_, err = s.Buy("alice", big.NewInt(10_000_000))
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	// No tokens minted without payment.
	assert.Equal(t, "0", s.GameLedger.BalanceOf("alice").String())
	assert.Equal(t, "10000000", s.StableLedger.BalanceOf("alice").String())
}

func TestWithdraw(t *testing.T) {
	t.Parallel()

	rate, _ := new(big.Int).SetString("1000000000000000000", 10)
	s := newStoreService(rate, nil)

	fund(t, s, "alice", 10_000_000)

	_, err := s.Buy("alice", big.NewInt(10_000_000))
	require.NoError(t, err)

	err = s.Withdraw("mallory", "mallory", big.NewInt(1))
	assert.ErrorIs(t, err, store.ErrNotOwner)

	err = s.Withdraw("admin", "", big.NewInt(1))
	assert.ErrorIs(t, err, token.ErrZeroAddress)

	err = s.Withdraw("admin", "treasury", big.NewInt(0))
	assert.ErrorIs(t, err, token.ErrInvalidAmount)

	err = s.Withdraw("admin", "treasury", big.NewInt(10_000_000))
	require.NoError(t, err)

	assert.Equal(t, "10000000", s.StableLedger.BalanceOf("treasury").String())
	assert.Equal(t, "0", s.StableLedger.BalanceOf("store").String())
}
