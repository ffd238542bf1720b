package model

import "time"

// TxTypeSend is the ledger transaction type for outgoing funds.
const TxTypeSend = "send"

// LedgerTx is one entry of an account's transaction history.
type LedgerTx struct {
	Type      string
	Amount    float64
	Account   string
	Timestamp time.Time
	Username  string
}

// Identity is an entry of the known-identity directory.
type Identity struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Twitter string `json:"twitter,omitempty"`
	GitHub  string `json:"github,omitempty"`
	Website string `json:"website,omitempty"`
}

// Donor is an account that sent funds to the tracked account.
type Donor struct {
	Account  string  `json:"account"`
	Amount   float64 `json:"amount_nano"`
	Username string  `json:"username,omitempty"`
	Twitter  string  `json:"twitter,omitempty"`
	GitHub   string  `json:"github,omitempty"`
	Website  string  `json:"website,omitempty"`
}

// DevFund is the aggregated view of the tracked account's history.
// Balances and Labels are parallel slices, oldest first.
type DevFund struct {
	Balances []int64
	Labels   []string
	Donors   []Donor
}
