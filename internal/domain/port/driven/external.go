package driven

import (
	"context"

	"github.com/nanocasa/casa/internal/domain/model"
)

// LedgerClient defines the driven port for reading an account's transaction history.
type LedgerClient interface {
	// AccountHistory returns the account's full history in the order the
	// ledger returned it. Callers must not assume oldest-first.
	AccountHistory(ctx context.Context, account string) ([]model.LedgerTx, error)
}

// IdentityDirectory defines the driven port for the known-identity directory.
type IdentityDirectory interface {
	FetchIdentities(ctx context.Context) ([]model.Identity, error)
}

// NodeProber defines the driven port for probing a single public node.
// Probe never returns an error: every failure is classified into the result.
type NodeProber interface {
	Probe(ctx context.Context, node model.NodeEndpoint) model.PublicNode
}
