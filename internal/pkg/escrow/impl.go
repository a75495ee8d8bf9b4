package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/banka/internal/pkg/common"
	"github.com/vreid/banka/internal/pkg/events"
	"github.com/vreid/banka/internal/pkg/token"
)

var (
	ErrNotOwner           = errors.New("caller is not the escrow owner")
	ErrNotResultAuthority = errors.New("caller is not the result authority")
	ErrNotParticipant     = errors.New("caller is not a declared participant")
	ErrSameParticipant    = errors.New("participants must be distinct")
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchExists        = errors.New("match already exists")
	ErrWrongStatus        = errors.New("operation invalid for match status")
	ErrAlreadyStaked      = errors.New("participant already staked")
	ErrTimeoutNotReached  = errors.New("refund timeout not reached")
)

var two = big.NewInt(2)

// EscrowService holds staked game tokens per match until the result
// authority commits a winner or the refund timeout elapses. One lock
// serializes all mutating operations, including their transfer step,
// so no two operations on the same match can interleave and no
// operation can re-enter during a transfer.
type EscrowService struct {
	Ledger  *token.Ledger
	Emitter *events.Emitter

	Owner           string
	ResultAuthority string
	Account         string

	Timeout time.Duration
	Now     func() time.Time

	mu      sync.Mutex
	matches map[string]*Match
}

// New wires an escrow service without the HTTP surface.
func New(ledger *token.Ledger, emitter *events.Emitter,
	owner, resultAuthority, account string, timeout time.Duration) *EscrowService {
	return &EscrowService{
		Ledger:  ledger,
		Emitter: emitter,

		Owner:           owner,
		ResultAuthority: resultAuthority,
		Account:         account,

		Timeout: timeout,
		Now:     time.Now,

		matches: map[string]*Match{},
	}
}

func NewEscrowService(i do.Injector) (*EscrowService, error) {
	ledger := do.MustInvokeNamed[*token.Ledger](i, "game-ledger")
	emitter := do.MustInvoke[*events.Emitter](i)

	owner := do.MustInvokeNamed[string](i, "admin-account")
	resultAuthority := do.MustInvokeNamed[string](i, "result-authority")
	account := do.MustInvokeNamed[string](i, "escrow-account")
	timeout := do.MustInvokeNamed[time.Duration](i, "refund-timeout")

	result := New(ledger, emitter, owner, resultAuthority, account, timeout)

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		escrowGroup := apiGroup.Group("/escrow")

		escrowGroup.POST("/matches", result.PostMatch)
		escrowGroup.GET("/matches/:id", result.GetMatch)
		escrowGroup.POST("/matches/:id/stake", result.PostStake)
		escrowGroup.POST("/matches/:id/result", result.PostResult)
		escrowGroup.POST("/matches/:id/refund", result.PostRefund)
	})

	return result, nil
}

// CreateMatch registers a new PENDING match under id. Owner only. The
// id is immutable once taken; recreating it fails and leaves the first
// match untouched.
func (s *EscrowService) CreateMatch(caller, id, p1, p2 string, stake *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.Owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}

	if len(id) == 0 || len(p1) == 0 || len(p2) == 0 {
		return token.ErrZeroAddress
	}

	if p1 == p2 {
		return fmt.Errorf("%w: %s", ErrSameParticipant, p1)
	}

	if stake == nil || stake.Sign() <= 0 {
		return token.ErrInvalidAmount
	}

	if _, ok := s.matches[id]; ok {
		return fmt.Errorf("%w: %s", ErrMatchExists, id)
	}

	s.matches[id] = &Match{
		ID:        id,
		Player1:   p1,
		Player2:   p2,
		Stake:     new(big.Int).Set(stake),
		Status:    StatusPending,
		CreatedAt: s.Now(),
	}

	s.Emitter.Emit(events.Event{
		Type:         events.TypeMatchCreated,
		MatchID:      id,
		Participants: []string{p1, p2},
		AmountIn:     stake.String(),
	})

	return nil
}

// Stake pulls the match stake from the calling participant into the
// escrow account. Each participant stakes exactly once; when the second
// stake lands the match moves to STAKED and the clock starts.
func (s *EscrowService) Stake(caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}

	if m.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrWrongStatus, id, m.Status)
	}

	if !m.participant(caller) {
		return fmt.Errorf("%w: %s", ErrNotParticipant, caller)
	}

	if (caller == m.Player1 && m.P1Staked) || (caller == m.Player2 && m.P2Staked) {
		return fmt.Errorf("%w: %s", ErrAlreadyStaked, caller)
	}

	err := s.Ledger.TransferFrom(s.Account, caller, s.Account, m.Stake)
	if err != nil {
		return fmt.Errorf("failed to pull stake: %w", err)
	}

	if caller == m.Player1 {
		m.P1Staked = true
	} else {
		m.P2Staked = true
	}

	if m.P1Staked && m.P2Staked {
		m.Status = StatusStaked
		m.StartTime = s.Now()
	}

	s.Emitter.Emit(events.Event{
		Type:     events.TypeMatchStaked,
		MatchID:  id,
		Account:  caller,
		AmountIn: m.Stake.String(),
	})

	return nil
}

// CommitResult pays the full pot, twice the stake, to the winner and
// settles the match. Result authority only; winner take all.
func (s *EscrowService) CommitResult(caller, id, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.ResultAuthority {
		return fmt.Errorf("%w: %s", ErrNotResultAuthority, caller)
	}

	m, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}

	if m.Status != StatusStaked {
		return fmt.Errorf("%w: %s is %s", ErrWrongStatus, id, m.Status)
	}

	if !m.participant(winner) {
		return fmt.Errorf("%w: %s", ErrNotParticipant, winner)
	}

	payout := new(big.Int).Mul(m.Stake, two)

	err := s.Ledger.Transfer(s.Account, winner, payout)
	if err != nil {
		return fmt.Errorf("failed to pay out: %w", err)
	}

	m.Status = StatusSettled

	s.Emitter.Emit(events.Event{
		Type:      events.TypeMatchSettled,
		MatchID:   id,
		Account:   winner,
		AmountOut: payout.String(),
	})

	return nil
}

// Refund returns each staked participant their stake once the timeout
// window has elapsed. Callable by anyone; succeeds at the boundary and
// after, never before. A match that never reached STAKED is refundable
// too, its window measured from creation, so a half-staked match cannot
// trap funds forever.
func (s *EscrowService) Refund(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}

	if m.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrWrongStatus, id, m.Status)
	}

	deadline := m.refundReference().Add(s.Timeout)
	if s.Now().Before(deadline) {
		return fmt.Errorf("%w: %s until %s", ErrTimeoutNotReached, id, deadline.UTC())
	}

	// Only sides that actually staked get credited; a never-staked
	// participant receives nothing. Both payouts are covered or none
	// happen, so a failed refund never leaves one side paid.
	needed := new(big.Int)

	if m.P1Staked {
		needed.Add(needed, m.Stake)
	}

	if m.P2Staked {
		needed.Add(needed, m.Stake)
	}

	if s.Ledger.BalanceOf(s.Account).Cmp(needed) < 0 {
		return fmt.Errorf("%w: escrow cannot cover refund of %s for %s",
			token.ErrInsufficientBalance, needed, id)
	}

	if m.P1Staked {
		err := s.Ledger.Transfer(s.Account, m.Player1, m.Stake)
		if err != nil {
			return fmt.Errorf("failed to refund %s: %w", m.Player1, err)
		}
	}

	if m.P2Staked {
		err := s.Ledger.Transfer(s.Account, m.Player2, m.Stake)
		if err != nil {
			return fmt.Errorf("failed to refund %s: %w", m.Player2, err)
		}
	}

	m.Status = StatusRefunded

	s.Emitter.Emit(events.Event{
		Type:         events.TypeMatchRefunded,
		MatchID:      id,
		Participants: []string{m.Player1, m.Player2},
		AmountOut:    m.Stake.String(),
	})

	return nil
}

// Match returns a copy of the match stored under id.
func (s *EscrowService) Match(id string) (Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}

	result := *m
	result.Stake = new(big.Int).Set(m.Stake)

	return result, nil
}

// TransferOwner hands match-creation authority to next. Current owner
// only.
func (s *EscrowService) TransferOwner(caller, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.Owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}

	if len(next) == 0 {
		return token.ErrZeroAddress
	}

	s.Owner = next

	return nil
}

// SetResultAuthority hands result-commitment authority to next.
// Current authority only.
func (s *EscrowService) SetResultAuthority(caller, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.ResultAuthority {
		return fmt.Errorf("%w: %s", ErrNotResultAuthority, caller)
	}

	if len(next) == 0 {
		return token.ErrZeroAddress
	}

	s.ResultAuthority = next

	return nil
}

func (s *EscrowService) PostMatch(c echo.Context) error {
	var request CreateMatchRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	stake, err := token.ParseAmount(request.Stake)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = s.CreateMatch(request.Account, request.ID, request.Player1, request.Player2, stake)
	if err != nil {
		return httpError(err)
	}

	m, err := s.Match(request.ID)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusCreated, matchResponse(m), "  ")
}

func (s *EscrowService) GetMatch(c echo.Context) error {
	m, err := s.Match(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, matchResponse(m), "  ")
}

// PostStake simulates a participant staking end to end: it approves
// the match stake on the declared account's behalf and then runs
// Stake. The escrow itself still enforces the allowance pull.
func (s *EscrowService) PostStake(c echo.Context) error {
	var request StakeRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(request.Account) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "account is required")
	}

	m, err := s.Match(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	err = s.Ledger.Approve(request.Account, s.Account, m.Stake)
	if err != nil {
		return httpError(err)
	}

	err = s.Stake(request.Account, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	m, err = s.Match(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, matchResponse(m), "  ")
}

func (s *EscrowService) PostResult(c echo.Context) error {
	var request ResultRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.CommitResult(request.Account, c.Param("id"), request.Winner)
	if err != nil {
		return httpError(err)
	}

	m, err := s.Match(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, matchResponse(m), "  ")
}

func (s *EscrowService) PostRefund(c echo.Context) error {
	err := s.Refund(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	m, err := s.Match(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, matchResponse(m), "  ")
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotResultAuthority),
		errors.Is(err, ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrMatchNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMatchExists),
		errors.Is(err, ErrWrongStatus),
		errors.Is(err, ErrAlreadyStaked),
		errors.Is(err, ErrTimeoutNotReached):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, ErrSameParticipant):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
