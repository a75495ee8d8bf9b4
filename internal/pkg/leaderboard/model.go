package leaderboard

// Stats is one account's derived record. TotalWon is a base-unit
// decimal string so the record round-trips through JSON and bbolt
// without precision loss.
type Stats struct {
	Wins     uint64 `json:"wins"`
	Played   uint64 `json:"played"`
	TotalWon string `json:"total_won"`
}

func zeroStats() Stats {
	return Stats{
		TotalWon: "0",
	}
}

type Entry struct {
	Account string `json:"account"`
	Stats
}

type PlayerResponse struct {
	Account string `json:"account"`
	Stats
}

type TotalsResponse struct {
	Players      int    `json:"players"`
	TotalWins    uint64 `json:"total_wins"`
	TotalMatches uint64 `json:"total_matches"`
	TotalWon     string `json:"total_won"`
	AverageWon   string `json:"average_won"`
}
