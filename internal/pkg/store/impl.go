package store

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/banka/internal/pkg/common"
	"github.com/vreid/banka/internal/pkg/events"
	"github.com/vreid/banka/internal/pkg/token"
)

// stableUnit is one whole unit of the external stable token, which
// carries six fractional digits.
var stableUnit = big.NewInt(1_000_000)

var (
	ErrNotOwner   = errors.New("caller is not the store owner")
	ErrZeroOutput = errors.New("amount converts to zero output")
)

// StoreService is the fixed-rate exchange: it pulls the external stable
// token from the buyer via an allowance and mints the game token in
// return. It is the sole minter of the game ledger.
type StoreService struct {
	GameLedger   *token.Ledger
	StableLedger *token.Ledger

	Emitter *events.Emitter

	Rate    *big.Int
	Owner   string
	Account string

	mu sync.Mutex
}

func NewStoreService(i do.Injector) (*StoreService, error) {
	gameLedger := do.MustInvokeNamed[*token.Ledger](i, "game-ledger")
	stableLedger := do.MustInvokeNamed[*token.Ledger](i, "stable-ledger")
	emitter := do.MustInvoke[*events.Emitter](i)

	rate := do.MustInvokeNamed[*big.Int](i, "exchange-rate")
	owner := do.MustInvokeNamed[string](i, "admin-account")
	account := do.MustInvokeNamed[string](i, "store-account")

	result := &StoreService{
		GameLedger:   gameLedger,
		StableLedger: stableLedger,

		Emitter: emitter,

		Rate:    rate,
		Owner:   owner,
		Account: account,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		storeGroup := apiGroup.Group("/store")

		storeGroup.POST("/buy", result.PostBuy)
		storeGroup.POST("/withdraw", result.PostWithdraw)

		tokenGroup := apiGroup.Group("/token")

		tokenGroup.GET("/balances/:account", result.GetBalances)
	})

	return result, nil
}

// Quote converts a stable base-unit amount into game base units using
// truncating integer division: out = amount * rate / 10^6.
func (s *StoreService) Quote(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, token.ErrInvalidAmount
	}

	out := new(big.Int).Mul(amount, s.Rate)
	out.Quo(out, stableUnit)

	if out.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s at rate %s", ErrZeroOutput, amount, s.Rate)
	}

	return out, nil
}

// Buy pulls amount of the stable token from buyer and mints the quoted
// game-token amount in return. The pull happens strictly before the
// mint, and the whole operation runs as one critical section.
func (s *StoreService) Buy(buyer string, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(buyer) == 0 {
		return nil, token.ErrZeroAddress
	}

	out, err := s.Quote(amount)
	if err != nil {
		return nil, err
	}

	err = s.StableLedger.TransferFrom(s.Account, buyer, s.Account, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pull stable tokens: %w", err)
	}

	err = s.GameLedger.Mint(s.Account, buyer, out)
	if err != nil {
		return nil, fmt.Errorf("failed to mint game tokens: %w", err)
	}

	s.Emitter.Emit(events.Event{
		Type:      events.TypePurchase,
		Account:   buyer,
		AmountIn:  amount.String(),
		AmountOut: out.String(),
	})

	return out, nil
}

// Withdraw moves accumulated stable tokens out of the store account.
// Owner only.
func (s *StoreService) Withdraw(caller, to string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.Owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}

	if len(to) == 0 {
		return token.ErrZeroAddress
	}

	if amount == nil || amount.Sign() <= 0 {
		return token.ErrInvalidAmount
	}

	err := s.StableLedger.Transfer(s.Account, to, amount)
	if err != nil {
		return fmt.Errorf("failed to withdraw stable tokens: %w", err)
	}

	return nil
}

// PostBuy simulates a purchase end to end: it faucets the stable amount
// to the buyer, approves the store, and runs Buy. The exchange itself
// still enforces the allowance pull.
func (s *StoreService) PostBuy(c echo.Context) error {
	var request BuyRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	amount, err := token.ParseAmount(request.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if len(request.Account) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "account is required")
	}

	err = s.StableLedger.Mint(s.Account, request.Account, amount)
	if err != nil {
		return httpError(err)
	}

	err = s.StableLedger.Approve(request.Account, s.Account, amount)
	if err != nil {
		return httpError(err)
	}

	out, err := s.Buy(request.Account, amount)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, BuyResponse{
		Buyer:     request.Account,
		AmountIn:  amount.String(),
		AmountOut: out.String(),
	}, "  ")
}

func (s *StoreService) PostWithdraw(c echo.Context) error {
	var request WithdrawRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	amount, err := token.ParseAmount(request.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = s.Withdraw(request.Account, request.To, amount)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, WithdrawResponse{
		To:     request.To,
		Amount: amount.String(),
	}, "  ")
}

func (s *StoreService) GetBalances(c echo.Context) error {
	account := c.Param("account")
	if len(account) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "account is required")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, BalancesResponse{
		Account: account,
		Game:    s.GameLedger.BalanceOf(account).String(),
		Stable:  s.StableLedger.BalanceOf(account).String(),
	}, "  ")
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotOwner), errors.Is(err, token.ErrNotMinter):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, ErrZeroOutput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
