// Package nanorpc implements the ledger and identity directory ports over the
// JSON RPC and static document endpoints of the Nano network services.
package nanorpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LedgerClient = (*LedgerClient)(nil)

// LedgerClient reads account history through the account_history RPC action.
type LedgerClient struct {
	httpClient *http.Client
	rpcURL     string
	key        string
}

// NewLedgerClient creates a LedgerClient with its own request timeout.
func NewLedgerClient(rpcURL, key string, timeout time.Duration) *LedgerClient {
	return NewLedgerClientWithHTTPClient(&http.Client{Timeout: timeout}, rpcURL, key)
}

// NewLedgerClientWithHTTPClient creates a LedgerClient with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewLedgerClientWithHTTPClient(httpClient *http.Client, rpcURL, key string) *LedgerClient {
	return &LedgerClient{
		httpClient: httpClient,
		rpcURL:     rpcURL,
		key:        key,
	}
}

// historyRequest is the JSON body of an account_history call. Count -1 asks
// for the full history; reverse asks for oldest first.
type historyRequest struct {
	Action  string `json:"action"`
	Account string `json:"account"`
	Count   string `json:"count"`
	Reverse bool   `json:"reverse"`
	Key     string `json:"key,omitempty"`
}

// historyResponse is the boundary struct of an account_history response.
type historyResponse struct {
	History []historyEntry `json:"history"`
	Error   string         `json:"error"`
}

type historyEntry struct {
	Type           string     `json:"type"`
	Account        string     `json:"account"`
	AmountNano     flexNumber `json:"amount_nano"`
	LocalTimestamp flexNumber `json:"local_timestamp"`
	Username       string     `json:"username"`
}

// flexNumber accepts a JSON number or a numeric string. RPC gateways differ in
// which one they send.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*n = flexNumber(s)
	return nil
}

// AccountHistory returns the full history of account in the order the RPC
// returned it. An entry with an unparseable amount fails the whole fetch, since
// dropping it would shift the running balance and the skipped opening entry.
func (c *LedgerClient) AccountHistory(ctx context.Context, account string) ([]model.LedgerTx, error) {
	body, err := json.Marshal(historyRequest{
		Action:  "account_history",
		Account: account,
		Count:   "-1",
		Reverse: true,
		Key:     c.key,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling account_history request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating account_history request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account_history for %s: %w", account, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account_history for %s: HTTP %d", account, resp.StatusCode)
	}

	var decoded historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding account_history response for %s: %w", account, err)
	}

	if decoded.Error != "" {
		return nil, fmt.Errorf("account_history for %s: %s", account, decoded.Error)
	}

	history := make([]model.LedgerTx, 0, len(decoded.History))
	for i, entry := range decoded.History {
		tx, err := mapHistoryEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("account_history for %s: entry %d: %w", account, i, err)
		}
		history = append(history, tx)
	}

	return history, nil
}

// mapHistoryEntry converts a boundary entry to a LedgerTx. A missing
// timestamp yields the zero time; a missing amount counts as zero.
func mapHistoryEntry(e historyEntry) (model.LedgerTx, error) {
	var amount float64
	if e.AmountNano != "" {
		v, err := strconv.ParseFloat(string(e.AmountNano), 64)
		if err != nil {
			return model.LedgerTx{}, fmt.Errorf("invalid amount %q", string(e.AmountNano))
		}
		amount = v
	}

	var ts time.Time
	if e.LocalTimestamp != "" {
		secs, err := strconv.ParseInt(string(e.LocalTimestamp), 10, 64)
		if err == nil && secs > 0 {
			ts = time.Unix(secs, 0).UTC()
		}
	}

	return model.LedgerTx{
		Type:      e.Type,
		Amount:    amount,
		Account:   e.Account,
		Timestamp: ts,
		Username:  e.Username,
	}, nil
}
