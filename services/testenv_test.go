package services

import (
	"testing"
	"time"

	"tonot_server/models"

	"github.com/stretchr/testify/require"
)

// testEnv wires the full service graph against the in-memory store with a
// controllable clock.
type testEnv struct {
	fd       *fakeDynamo
	notifier *recordingNotifier
	now      time.Time

	Users     *UserService
	Matches   *MatchService
	Pools     *PoolService
	Referrals *ReferralService
	Reaper    *ReaperService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		fd:       newFakeDynamo(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	dynamo := &DynamoService{Client: e.fd}
	clock := func() time.Time { return e.now }

	e.Referrals = &ReferralService{Dynamo: dynamo, Clock: clock}
	e.Users = &UserService{Dynamo: dynamo, Referrals: e.Referrals, Clock: clock}
	e.Matches = &MatchService{Dynamo: dynamo, Notifier: e.notifier, Referrals: e.Referrals, Clock: clock}
	e.Pools = &PoolService{Dynamo: dynamo, Notifier: e.notifier, Referrals: e.Referrals, Clock: clock}
	e.Reaper = &ReaperService{Matches: e.Matches, Pools: e.Pools, Dynamo: dynamo, Clock: clock}
	return e
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) seedUser(t *testing.T, telegramID string, tickets, chance int64) {
	t.Helper()
	e.fd.seed(t, models.UsersTable, models.User{
		TelegramID:         telegramID,
		Username:           telegramID + "_name",
		Tickets:            tickets,
		TonotChanceTickets: chance,
		ReferredBy:         []string{},
		PurchaseHistory:    []models.PurchaseRecord{},
		GameHistory:        []models.GameRecord{},
		CreatedAt:          models.FormatTime(e.now),
	})
}

func (e *testEnv) user(t *testing.T, telegramID string) models.User {
	t.Helper()
	var u models.User
	require.True(t, e.fd.load(t, models.UsersTable, telegramID, &u), "user %s not found", telegramID)
	return u
}

func (e *testEnv) match(t *testing.T, matchID string) models.Match {
	t.Helper()
	var m models.Match
	require.True(t, e.fd.load(t, models.MatchesTable, matchID, &m), "match %s not found", matchID)
	return m
}

func (e *testEnv) pool(t *testing.T, matchID string) models.MatchX10 {
	t.Helper()
	var p models.MatchX10
	require.True(t, e.fd.load(t, models.MatchesX10Table, matchID, &p), "pool %s not found", matchID)
	return p
}

func (e *testEnv) referral(t *testing.T, inviteeID string) models.Referral {
	t.Helper()
	var r models.Referral
	require.True(t, e.fd.load(t, models.ReferralsTable, inviteeID, &r), "referral %s not found", inviteeID)
	return r
}

func (e *testEnv) hasQueueEntry(telegramID string) bool {
	e.fd.mu.Lock()
	defer e.fd.mu.Unlock()
	_, ok := e.fd.table(models.WaitingPlayersTable)[telegramID]
	return ok
}

func (e *testEnv) hasPoolEntry(telegramID string) bool {
	e.fd.mu.Lock()
	defer e.fd.mu.Unlock()
	_, ok := e.fd.table(models.WaitingPlayersX10Table)[telegramID]
	return ok
}
