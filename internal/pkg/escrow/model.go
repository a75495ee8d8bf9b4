package escrow

import (
	"math/big"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusStaked   Status = "STAKED"
	StatusSettled  Status = "SETTLED"
	StatusRefunded Status = "REFUNDED"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusRefunded
}

// Match is one escrow entry. The id is an opaque caller-supplied key,
// immutable and unique for the lifetime of the process. StartTime is
// set exactly once, when the second participant stakes.
type Match struct {
	ID      string
	Player1 string
	Player2 string
	Stake   *big.Int

	Status    Status
	P1Staked  bool
	P2Staked  bool
	CreatedAt time.Time
	StartTime time.Time
}

// refundReference is the instant the refund window is measured from:
// stake completion when it happened, creation otherwise.
func (m *Match) refundReference() time.Time {
	if !m.StartTime.IsZero() {
		return m.StartTime
	}

	return m.CreatedAt
}

func (m *Match) participant(account string) bool {
	return account == m.Player1 || account == m.Player2
}

type CreateMatchRequest struct {
	Account string `json:"account"`
	ID      string `json:"id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Stake   string `json:"stake"`
}

type StakeRequest struct {
	Account string `json:"account"`
}

type ResultRequest struct {
	Account string `json:"account"`
	Winner  string `json:"winner"`
}

type RefundRequest struct {
	Account string `json:"account"`
}

type MatchResponse struct {
	ID      string `json:"id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Stake   string `json:"stake"`

	Status    Status `json:"status"`
	P1Staked  bool   `json:"player1_staked"`
	P2Staked  bool   `json:"player2_staked"`
	CreatedAt int64  `json:"created_at"`
	StartTime int64  `json:"start_time,omitempty"`
}

func matchResponse(m Match) MatchResponse {
	response := MatchResponse{
		ID:      m.ID,
		Player1: m.Player1,
		Player2: m.Player2,
		Stake:   m.Stake.String(),

		Status:    m.Status,
		P1Staked:  m.P1Staked,
		P2Staked:  m.P2Staked,
		CreatedAt: m.CreatedAt.Unix(),
	}

	if !m.StartTime.IsZero() {
		response.StartTime = m.StartTime.Unix()
	}

	return response
}
