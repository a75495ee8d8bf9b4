package events

type Type string

const (
	TypePurchase      Type = "purchase"
	TypeMatchCreated  Type = "match_created"
	TypeMatchStaked   Type = "match_staked"
	TypeMatchSettled  Type = "match_settled"
	TypeMatchRefunded Type = "match_refunded"
)

// Event is one finalized state transition. Seq is strictly increasing
// across all emitters sharing an Emitter, in ledger finalization order.
// Amounts travel as decimal strings in base units.
type Event struct {
	Seq  uint64 `json:"seq"`
	ID   string `json:"id"`
	Type Type   `json:"type"`

	MatchID      string   `json:"match_id,omitempty"`
	Account      string   `json:"account,omitempty"`
	Participants []string `json:"participants,omitempty"`

	AmountIn  string `json:"amount_in,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
}
