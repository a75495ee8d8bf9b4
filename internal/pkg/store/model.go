package store

type BuyRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type BuyResponse struct {
	Buyer     string `json:"buyer"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

type WithdrawRequest struct {
	Account string `json:"account"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

type WithdrawResponse struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BalancesResponse struct {
	Account string `json:"account"`
	Game    string `json:"game"`
	Stable  string `json:"stable"`
}
