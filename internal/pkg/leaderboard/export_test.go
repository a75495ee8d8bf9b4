package leaderboard

import (
	"github.com/vreid/banka/internal/pkg/common"
)

// NewTestService wires a service without the HTTP surface or the
// consumer goroutine so tests can drive HandleEvent directly.
func NewTestService(database *common.DatabaseService, matches MatchReader) *LeaderboardService {
	return &LeaderboardService{
		DatabaseService: database,
		Matches:         matches,

		stats: map[string]Stats{},
	}
}

// Cursor exposes the durable cursor position.
func (s *LeaderboardService) Cursor() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor
}

// Load exposes the bbolt state restore.
func (s *LeaderboardService) Load() error {
	return s.load()
}
