package application

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

const unknownDateLabel = "Unknown Date"

// LedgerPolicy tunes donor aggregation.
type LedgerPolicy struct {
	// SkipFirstEntry excludes the first history entry from donors. It opens
	// the account and is still counted in the balance.
	SkipFirstEntry bool
}

// OrderOldestFirst returns history oldest first. A history whose first dated
// entry is newer than its last dated entry is reversed.
func OrderOldestFirst(history []model.LedgerTx) []model.LedgerTx {
	first, last := -1, -1
	for i, tx := range history {
		if tx.Timestamp.IsZero() {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}

	out := slices.Clone(history)
	if first >= 0 && history[first].Timestamp.After(history[last].Timestamp) {
		slices.Reverse(out)
	}
	return out
}

// AggregateLedger builds the running balance, date labels and donor list from
// an oldest-first history.
func AggregateLedger(history []model.LedgerTx, known []model.Identity, policy LedgerPolicy) model.DevFund {
	byAddress := make(map[string]model.Identity, len(known))
	byName := make(map[string]model.Identity, len(known))
	for _, id := range known {
		if id.Address != "" {
			byAddress[id.Address] = id
		}
		if id.Name != "" {
			byName[id.Name] = id
		}
	}

	fund := model.DevFund{
		Balances: make([]int64, len(history)),
		Labels:   make([]string, len(history)),
	}

	donors := make(map[string]*model.Donor)
	balance := 0.0

	for i, tx := range history {
		if tx.Type == model.TxTypeSend {
			balance -= tx.Amount
		} else {
			balance += tx.Amount
		}
		fund.Balances[i] = int64(math.Round(balance))

		if tx.Timestamp.IsZero() {
			fund.Labels[i] = unknownDateLabel
		} else {
			fund.Labels[i] = tx.Timestamp.UTC().Format("2006-01-02")
		}

		if i == 0 && policy.SkipFirstEntry {
			continue
		}
		if tx.Type == model.TxTypeSend || tx.Amount <= 0 {
			continue
		}

		d, ok := donors[tx.Account]
		if !ok {
			d = &model.Donor{Account: tx.Account}
			donors[tx.Account] = d
		}
		d.Amount += tx.Amount

		if d.Username == "" {
			d.Username = tx.Username
		}
		if d.Username == "" {
			d.Username = byAddress[tx.Account].Name
		}
	}

	fund.Donors = make([]model.Donor, 0, len(donors))
	for _, d := range donors {
		if id, ok := byName[d.Username]; ok && d.Username != "" {
			d.Twitter = id.Twitter
			d.GitHub = id.GitHub
			d.Website = id.Website
		}
		fund.Donors = append(fund.Donors, *d)
	}
	slices.SortFunc(fund.Donors, func(a, b model.Donor) int {
		return cmp.Or(cmp.Compare(b.Amount, a.Amount), cmp.Compare(a.Account, b.Account))
	})

	return fund
}

// DevFundService refreshes the development fund dataset.
type DevFundService struct {
	ledger    driven.LedgerClient
	directory driven.IdentityDirectory
	misc      driven.MiscStore
	account   string
	policy    LedgerPolicy
}

// NewDevFundService creates a DevFundService tracking account.
func NewDevFundService(
	ledger driven.LedgerClient,
	directory driven.IdentityDirectory,
	misc driven.MiscStore,
	account string,
	policy LedgerPolicy,
) *DevFundService {
	return &DevFundService{ledger: ledger, directory: directory, misc: misc, account: account, policy: policy}
}

// Refresh fetches the ledger history and the identity directory concurrently,
// aggregates them and stores the three dev fund documents together. Without
// the directory, donors are stored unenriched.
func (s *DevFundService) Refresh(ctx context.Context, log *JobLogger) error {
	var (
		history    []model.LedgerTx
		identities []model.Identity
		dirErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.ledger.AccountHistory(gctx, s.account)
		if err != nil {
			return fmt.Errorf("fetch account history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		identities, dirErr = s.directory.FetchIdentities(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if dirErr != nil {
		log.Warn("identity directory unavailable, donors not enriched", "error", dirErr)
		identities = nil
	}

	if len(history) == 0 {
		log.Warn("account history is empty", "account", s.account)
		return nil
	}

	fund := AggregateLedger(OrderOldestFirst(history), identities, s.policy)

	docs := map[string]any{
		model.MiscKeyDevFundData:   fund.Balances,
		model.MiscKeyDevFundLabels: fund.Labels,
		model.MiscKeyDevFundDonors: fund.Donors,
	}
	values := make(map[string]string, len(docs))
	for key, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		values[key] = string(payload)
	}
	if err := s.misc.SetMany(ctx, values); err != nil {
		return fmt.Errorf("store dev fund: %w", err)
	}

	log.Info("dev fund refreshed", "entries", len(history), "donors", len(fund.Donors), "identities", len(identities))
	return nil
}
