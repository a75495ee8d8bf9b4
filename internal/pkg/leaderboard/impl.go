package leaderboard

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/samber/do/v2"
	"github.com/shopspring/decimal"
	"github.com/vreid/banka/internal/pkg/common"
	"github.com/vreid/banka/internal/pkg/escrow"
	"github.com/vreid/banka/internal/pkg/events"
	"go.etcd.io/bbolt"
)

const DefaultTopN = 10

// MatchReader resolves a match by id so the settlement handler can find
// the losing side. The read may fail; the handler recovers by skipping
// only the loser-side update.
type MatchReader interface {
	Match(id string) (escrow.Match, error)
}

// LeaderboardService drains the event channel on a single goroutine and
// maintains the derived per-account statistics table. The table and the
// last applied sequence number are persisted to bbolt, so aggregation
// resumes after a restart without reprocessing or dropping events.
type LeaderboardService struct {
	DatabaseService *common.DatabaseService

	Source  <-chan events.Event
	Matches MatchReader

	mu     sync.RWMutex
	stats  map[string]Stats
	cursor uint64
}

func NewLeaderboardService(i do.Injector) (*LeaderboardService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	source := do.MustInvokeNamed[<-chan events.Event](i, "event-source")
	matches := do.MustInvoke[*escrow.EscrowService](i)

	result := &LeaderboardService{
		DatabaseService: databaseService,

		Source:  source,
		Matches: matches,

		stats: map[string]Stats{},
	}

	err := result.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard state: %w", err)
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		leaderboardGroup := apiGroup.Group("/leaderboard")

		leaderboardGroup.GET("/top", result.GetTop)
		leaderboardGroup.GET("/players/:account", result.GetPlayer)
		leaderboardGroup.GET("/totals", result.GetTotals)
		leaderboardGroup.POST("/reset", result.PostReset)
	})

	return result, nil
}

func (s *LeaderboardService) Start() {
	go s.processEvents()
}

func (s *LeaderboardService) processEvents() {
	for event := range s.Source {
		s.HandleEvent(event)
	}
}

// HandleEvent applies one event to the statistics table. Events at or
// below the durable cursor were already applied in a previous run and
// are skipped.
func (s *LeaderboardService) HandleEvent(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Seq != 0 && event.Seq <= s.cursor {
		return
	}

	touched := map[string]bool{}

	switch event.Type {
	case events.TypePurchase:
		s.ensure(event.Account, touched)

	case events.TypeMatchCreated:
		for _, participant := range event.Participants {
			s.ensure(participant, touched)
		}

	case events.TypeMatchStaked:
		// Staking changes no statistic; the event only advances the
		// cursor.

	case events.TypeMatchSettled:
		s.applySettled(event, touched)

	case events.TypeMatchRefunded:
		for _, participant := range event.Participants {
			if stats, ok := s.stats[participant]; ok {
				stats.Played++
				s.stats[participant] = stats
				touched[participant] = true
			}
		}
	}

	if event.Seq != 0 {
		s.cursor = event.Seq
	}

	s.persist(touched)
}

func (s *LeaderboardService) applySettled(event events.Event, touched map[string]bool) {
	winner := event.Account

	s.ensure(winner, touched)

	stats := s.stats[winner]
	stats.Wins++
	stats.Played++
	stats.TotalWon = addAmount(stats.TotalWon, event.AmountOut)
	s.stats[winner] = stats
	touched[winner] = true

	m, err := s.Matches.Match(event.MatchID)
	if err != nil {
		log.Warnf("failed to resolve loser of match %s: %v", event.MatchID, err)

		return
	}

	loser := m.Player1
	if loser == winner {
		loser = m.Player2
	}

	s.ensure(loser, touched)

	stats = s.stats[loser]
	stats.Played++
	s.stats[loser] = stats
	touched[loser] = true
}

func (s *LeaderboardService) ensure(account string, touched map[string]bool) {
	if len(account) == 0 {
		return
	}

	if _, ok := s.stats[account]; !ok {
		s.stats[account] = zeroStats()
		touched[account] = true
	}
}

// Top returns the n highest cumulative winners, descending, ties broken
// lexicographically by account id.
func (s *LeaderboardService) Top(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		n = DefaultTopN
	}

	entries := make([]Entry, 0, len(s.stats))
	for account, stats := range s.stats {
		entries = append(entries, Entry{
			Account: account,
			Stats:   stats,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		cmp := parseAmount(entries[i].TotalWon).Cmp(parseAmount(entries[j].TotalWon))
		if cmp != 0 {
			return cmp > 0
		}

		return entries[i].Account < entries[j].Account
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	return entries
}

// Player returns the account's statistics, zero-valued if never seen.
func (s *LeaderboardService) Player(account string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[account]
	if !ok {
		return zeroStats()
	}

	return stats
}

// Totals aggregates the whole table. The average is total winnings over
// player count, in base units rounded to two decimal places.
func (s *LeaderboardService) Totals() TotalsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := TotalsResponse{
		TotalWon:   "0",
		AverageWon: "0",
	}

	totalWon := new(big.Int)

	for _, stats := range s.stats {
		result.Players++
		result.TotalWins += stats.Wins
		result.TotalMatches += stats.Played
		totalWon.Add(totalWon, parseAmount(stats.TotalWon))
	}

	result.TotalWon = totalWon.String()

	if result.Players > 0 {
		average := decimal.NewFromBigInt(totalWon, 0).
			DivRound(decimal.NewFromInt(int64(result.Players)), 2)
		result.AverageWon = average.String()
	}

	return result
}

// Reset clears the statistics table and the durable cursor.
func (s *LeaderboardService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = map[string]Stats{}
	s.cursor = 0

	if s.DatabaseService == nil {
		return nil
	}

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{
			common.LeaderboardStatsBucket,
			common.LeaderboardCursorBucket,
		} {
			err := tx.DeleteBucket([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to drop %s bucket: %w", bucket, err)
			}

			_, err = tx.CreateBucket([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to recreate %s bucket: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset leaderboard state: %w", err)
	}

	return nil
}

func (s *LeaderboardService) load() error {
	if s.DatabaseService == nil {
		return nil
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		cursorBucket := tx.Bucket([]byte(common.LeaderboardCursorBucket))
		if cursorBucket != nil {
			s.cursor = common.BytesToUint64(cursorBucket.Get([]byte("cursor")), 0)
		}

		statsBucket := tx.Bucket([]byte(common.LeaderboardStatsBucket))
		if statsBucket == nil {
			return nil
		}

		return statsBucket.ForEach(func(k, v []byte) error {
			var stats Stats

			err := json.Unmarshal(v, &stats)
			if err != nil {
				return fmt.Errorf("failed to decode stats for %s: %w", k, err)
			}

			s.stats[string(k)] = stats

			return nil
		})
	})
}

func (s *LeaderboardService) persist(touched map[string]bool) {
	if s.DatabaseService == nil || (len(touched) == 0 && s.cursor == 0) {
		return
	}

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		statsBucket := tx.Bucket([]byte(common.LeaderboardStatsBucket))
		if statsBucket == nil {
			return fmt.Errorf("missing %s bucket", common.LeaderboardStatsBucket)
		}

		for account := range touched {
			marshaled, err := json.Marshal(s.stats[account])
			if err != nil {
				return fmt.Errorf("failed to encode stats for %s: %w", account, err)
			}

			err = statsBucket.Put([]byte(account), marshaled)
			if err != nil {
				return fmt.Errorf("failed to put stats for %s: %w", account, err)
			}
		}

		cursorBucket := tx.Bucket([]byte(common.LeaderboardCursorBucket))
		if cursorBucket == nil {
			return fmt.Errorf("missing %s bucket", common.LeaderboardCursorBucket)
		}

		//nolint:wrapcheck
		return cursorBucket.Put([]byte("cursor"), common.Uint64ToBytes(s.cursor))
	})
	if err != nil {
		log.Warnf("failed to persist leaderboard state: %v", err)
	}
}

func (s *LeaderboardService) GetTop(c echo.Context) error {
	n := DefaultTopN

	if raw := c.QueryParam("n"); len(raw) > 0 {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a positive integer")
		}

		n = parsed
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, s.Top(n), "  ")
}

func (s *LeaderboardService) GetPlayer(c echo.Context) error {
	account := c.Param("account")
	if len(account) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "account is required")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, PlayerResponse{
		Account: account,
		Stats:   s.Player(account),
	}, "  ")
}

func (s *LeaderboardService) GetTotals(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, s.Totals(), "  ")
}

func (s *LeaderboardService) PostReset(c echo.Context) error {
	err := s.Reset()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}

func addAmount(current, delta string) string {
	return new(big.Int).Add(parseAmount(current), parseAmount(delta)).String()
}

func parseAmount(s string) *big.Int {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}

	return amount
}
