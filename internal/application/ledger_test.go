package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

type mockLedger struct {
	history []model.LedgerTx
	err     error
}

func (m *mockLedger) AccountHistory(_ context.Context, _ string) ([]model.LedgerTx, error) {
	return m.history, m.err
}

type mockDirectory struct {
	identities []model.Identity
	err        error
}

func (m *mockDirectory) FetchIdentities(_ context.Context) ([]model.Identity, error) {
	return m.identities, m.err
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 15, 30, 0, 0, time.UTC)
}

func TestAggregateLedger_RunningBalance(t *testing.T) {
	history := []model.LedgerTx{
		{Type: "receive", Amount: 10, Account: "nano_open", Timestamp: day(1)},
		{Type: model.TxTypeSend, Amount: 3, Account: "nano_out", Timestamp: day(2)},
		{Type: "receive", Amount: 5, Account: "nano_donor", Timestamp: day(3)},
	}

	fund := application.AggregateLedger(history, nil, application.LedgerPolicy{})

	assert.Equal(t, []int64{10, 7, 12}, fund.Balances)
	assert.Equal(t, []string{"2026-01-01", "2026-01-02", "2026-01-03"}, fund.Labels)
	require.Len(t, fund.Donors, 2)
	assert.Equal(t, "nano_open", fund.Donors[0].Account)
	assert.Equal(t, "nano_donor", fund.Donors[1].Account)
}

func TestAggregateLedger_Donors(t *testing.T) {
	history := []model.LedgerTx{
		{Type: "receive", Amount: 1000, Account: "nano_genesis", Timestamp: day(1)},
		{Type: "receive", Amount: 2.5, Account: "nano_alice"},
		{Type: "receive", Amount: 4, Account: "nano_bob", Username: "bob"},
		{Type: "receive", Amount: 4, Account: "nano_alice", Timestamp: day(4)},
		{Type: model.TxTypeSend, Amount: 50, Account: "nano_alice", Timestamp: day(5)},
		{Type: "receive", Amount: 0, Account: "nano_zero", Timestamp: day(6)},
		{Type: "receive", Amount: 4, Account: "nano_ann", Timestamp: day(7)},
	}
	known := []model.Identity{
		{Name: "alice", Address: "nano_alice", Twitter: "alice_x", GitHub: "alice-gh"},
		{Name: "bob", Address: "nano_other", Website: "bob.example.com"},
	}

	fund := application.AggregateLedger(history, known, application.LedgerPolicy{SkipFirstEntry: true})

	assert.Equal(t, "Unknown Date", fund.Labels[1])
	assert.Equal(t, int64(965), fund.Balances[len(fund.Balances)-1], "first entry counts toward the balance")

	require.Len(t, fund.Donors, 3)
	assert.Equal(t, model.Donor{Account: "nano_alice", Amount: 6.5, Username: "alice", Twitter: "alice_x", GitHub: "alice-gh"}, fund.Donors[0])
	assert.Equal(t, model.Donor{Account: "nano_ann", Amount: 4}, fund.Donors[1], "ties sorted by account")
	assert.Equal(t, model.Donor{Account: "nano_bob", Amount: 4, Username: "bob", Website: "bob.example.com"}, fund.Donors[2])
}

func TestOrderOldestFirst(t *testing.T) {
	newestFirst := []model.LedgerTx{
		{Account: "c", Timestamp: day(3)},
		{Account: "b"},
		{Account: "a", Timestamp: day(1)},
	}

	got := application.OrderOldestFirst(newestFirst)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Account, got[1].Account, got[2].Account})
	assert.Equal(t, "c", newestFirst[0].Account, "input is not modified")

	again := application.OrderOldestFirst(got)
	assert.Equal(t, got, again)
}

func TestDevFundService_Refresh(t *testing.T) {
	ledger := &mockLedger{history: []model.LedgerTx{
		{Type: "receive", Amount: 5, Account: "nano_donor", Timestamp: day(3)},
		{Type: model.TxTypeSend, Amount: 3, Account: "nano_out", Timestamp: day(2)},
		{Type: "receive", Amount: 10, Account: "nano_open", Timestamp: day(1)},
	}}
	misc := newMockMiscStore()

	svc := application.NewDevFundService(ledger, &mockDirectory{}, misc, "@Protocol_fund", application.LedgerPolicy{SkipFirstEntry: true})
	require.NoError(t, svc.Refresh(context.Background(), discardLogger()))

	data, err := misc.Get(context.Background(), model.MiscKeyDevFundData)
	require.NoError(t, err)
	assert.JSONEq(t, `[10,7,12]`, data)

	labels, _ := misc.Get(context.Background(), model.MiscKeyDevFundLabels)
	assert.JSONEq(t, `["2026-01-01","2026-01-02","2026-01-03"]`, labels)

	donors, _ := misc.Get(context.Background(), model.MiscKeyDevFundDonors)
	assert.JSONEq(t, `[{"account":"nano_donor","amount_nano":5}]`, donors)
}

func TestDevFundService_EmptyHistoryIsNotAFailure(t *testing.T) {
	misc := newMockMiscStore()
	svc := application.NewDevFundService(&mockLedger{}, &mockDirectory{}, misc, "acct", application.LedgerPolicy{})

	require.NoError(t, svc.Refresh(context.Background(), discardLogger()))
	all, _ := misc.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestDevFundService_DirectoryFailureStoresUnenrichedDonors(t *testing.T) {
	misc := newMockMiscStore()
	svc := application.NewDevFundService(
		&mockLedger{history: []model.LedgerTx{
			{Type: "receive", Amount: 10, Account: "nano_open", Timestamp: day(1)},
			{Type: "receive", Amount: 4, Account: "nano_donor", Timestamp: day(2)},
		}},
		&mockDirectory{err: errors.New("HTTP 502")},
		misc, "acct", application.LedgerPolicy{SkipFirstEntry: true},
	)

	require.NoError(t, svc.Refresh(context.Background(), discardLogger()))

	donors, err := misc.Get(context.Background(), model.MiscKeyDevFundDonors)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"account":"nano_donor","amount_nano":4}]`, donors)
}

func TestDevFundService_LedgerFailureFails(t *testing.T) {
	svc := application.NewDevFundService(
		&mockLedger{err: errors.New("HTTP 503")},
		&mockDirectory{},
		newMockMiscStore(), "acct", application.LedgerPolicy{},
	)

	err := svc.Refresh(context.Background(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account history")
}

func TestDevFundService_FailedStoreKeepsPreviousDocuments(t *testing.T) {
	misc := newMockMiscStore()
	misc.values[model.MiscKeyDevFundData] = `[10,15]`
	misc.values[model.MiscKeyDevFundLabels] = `["old","old"]`
	misc.values[model.MiscKeyDevFundDonors] = `[]`
	misc.failKey = model.MiscKeyDevFundLabels

	svc := application.NewDevFundService(
		&mockLedger{history: []model.LedgerTx{
			{Type: "receive", Amount: 1, Account: "nano_a", Timestamp: day(1)},
			{Type: "receive", Amount: 2, Account: "nano_b", Timestamp: day(2)},
			{Type: "receive", Amount: 3, Account: "nano_c", Timestamp: day(3)},
		}},
		&mockDirectory{}, misc, "acct", application.LedgerPolicy{},
	)

	err := svc.Refresh(context.Background(), discardLogger())
	require.Error(t, err)

	all, _ := misc.ListAll(context.Background())
	assert.Equal(t, `[10,15]`, all[model.MiscKeyDevFundData])
	assert.Equal(t, `["old","old"]`, all[model.MiscKeyDevFundLabels])
	assert.Equal(t, `[]`, all[model.MiscKeyDevFundDonors])
}
