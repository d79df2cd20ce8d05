package services

import (
	"context"
	"testing"
	"time"

	"tonot_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepCancelsStaleMatchAndRefunds(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 10, 0)
	e.seedUser(t, "bob", 10, 0)

	_, err := e.Matches.JoinQueue(ctx, "alice", "alice_name", 5)
	require.NoError(t, err)
	joined, err := e.Matches.JoinQueue(ctx, "bob", "bob_name", 5)
	require.NoError(t, err)

	e.advance(models.MatchStaleAfter + time.Second)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CanceledMatches)

	match := e.match(t, joined.MatchID)
	assert.Equal(t, models.MatchStatusCanceled, match.Status)
	assert.Equal(t, models.CancelReasonTimeout, match.CancelReason)
	assert.Equal(t, int64(10), e.user(t, "alice").Tickets)
	assert.Equal(t, int64(10), e.user(t, "bob").Tickets)

	// Sweeping again is a no-op: the refund happened exactly once.
	res, err = e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.CanceledMatches)
	assert.Equal(t, int64(10), e.user(t, "alice").Tickets)
}

func TestSweepLeavesFreshMatchAlone(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 10, 0)
	e.seedUser(t, "bob", 10, 0)

	_, err := e.Matches.JoinQueue(ctx, "alice", "alice_name", 5)
	require.NoError(t, err)
	joined, err := e.Matches.JoinQueue(ctx, "bob", "bob_name", 5)
	require.NoError(t, err)

	e.advance(models.MatchStaleAfter - time.Second)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.CanceledMatches)
	assert.Equal(t, models.MatchStatusMatched, e.match(t, joined.MatchID).Status)
}

func TestSweepDeletesExpiredQueueEntriesWithoutRefund(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 10, 0)
	e.seedUser(t, "bob", 10, 0)

	_, err := e.Matches.JoinQueue(ctx, "alice", "alice_name", 5)
	require.NoError(t, err)
	e.advance(models.QueueEntryTTL - time.Minute)
	_, err = e.Matches.JoinQueue(ctx, "bob", "bob_name", 3)
	require.NoError(t, err)

	e.advance(time.Minute)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemovedQueueEntries)

	assert.False(t, e.hasQueueEntry("alice"))
	assert.True(t, e.hasQueueEntry("bob"))
	// No stake was held while waiting, so nothing comes back.
	assert.Equal(t, int64(10), e.user(t, "alice").Tickets)
}

func TestSweepCancelsAbandonedPool(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 0, 3)
	e.seedUser(t, "bob", 0, 3)

	joined, err := e.Pools.JoinPool(ctx, "alice", "alice_name")
	require.NoError(t, err)
	_, err = e.Pools.JoinPool(ctx, "bob", "bob_name")
	require.NoError(t, err)

	e.advance(models.X10PoolStaleAfter + time.Minute)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CanceledMatches)

	pool := e.pool(t, joined.MatchID)
	assert.Equal(t, models.PoolStatusCanceled, pool.Status)
	assert.Equal(t, models.CancelReasonTimeout, pool.CancelReason)

	// Paid entries come back when the pool dies of old age.
	assert.Equal(t, int64(3), e.user(t, "alice").TonotChanceTickets)
	assert.Equal(t, int64(3), e.user(t, "bob").TonotChanceTickets)
	assert.False(t, e.hasPoolEntry("alice"))
	assert.False(t, e.hasPoolEntry("bob"))
}

func TestSweepNeverDoubleRefundsConcurrentPoolCancel(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 0, 3)
	e.seedUser(t, "bob", 0, 3)

	joined, err := e.Pools.JoinPool(ctx, "alice", "alice_name")
	require.NoError(t, err)
	_, err = e.Pools.JoinPool(ctx, "bob", "bob_name")
	require.NoError(t, err)

	e.advance(models.X10PoolStaleAfter + time.Minute)

	// An eligible refund-cancel lands between the sweep's scan and its
	// transaction. The sweep's snapshot still lists alice; paying her again
	// from it would refund her twice.
	e.fd.beforeTransact = func() {
		res, err := e.Pools.CancelPoolEntry(ctx, "alice")
		require.NoError(t, err)
		require.True(t, res.Refunded)
	}

	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.CanceledMatches, "sweep must lose the race, not refund a stale snapshot")

	assert.Equal(t, int64(3), e.user(t, "alice").TonotChanceTickets)
	assert.Equal(t, int64(2), e.user(t, "bob").TonotChanceTickets)
	assert.Equal(t, models.PoolStatusWaiting, e.pool(t, joined.MatchID).Status)

	// The next pass sees the fresh snapshot and finishes the job.
	res, err = e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CanceledMatches)
	assert.Equal(t, models.PoolStatusCanceled, e.pool(t, joined.MatchID).Status)
	assert.Equal(t, int64(3), e.user(t, "alice").TonotChanceTickets)
	assert.Equal(t, int64(3), e.user(t, "bob").TonotChanceTickets)
	assert.False(t, e.hasPoolEntry("bob"))
}

func TestSweepLeavesPlayingPoolAlone(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	ids := seedPoolPlayers(t, e, models.PoolSize)
	started := joinAll(t, e, ids)

	e.advance(models.X10PoolStaleAfter + time.Minute)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.CanceledMatches)
	assert.Equal(t, models.PoolStatusPlaying, e.pool(t, started.MatchID).Status)
}

func TestSweepRemovesOrphanedPoolEntries(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.seedUser(t, "alice", 0, 3)

	// An entry whose pool record is gone: nothing holds it any more.
	e.fd.seed(t, models.WaitingPlayersX10Table, models.WaitingPlayerX10{
		TelegramID: "alice",
		Username:   "alice_name",
		MatchID:    "vanished-pool",
		JoinedAt:   models.FormatTime(e.now),
	})

	e.advance(models.X10OrphanEntryTTL + time.Minute)
	res, err := e.Reaper.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemovedQueueEntries)
	assert.False(t, e.hasPoolEntry("alice"))
	// Orphan cleanup never refunds; the eligibility-gated cancel does.
	assert.Equal(t, int64(3), e.user(t, "alice").TonotChanceTickets)
}

func TestSweepOnEmptyStateIsQuiet(t *testing.T) {
	e := newTestEnv()

	res, err := e.Reaper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.CanceledMatches)
	assert.Zero(t, res.RemovedQueueEntries)
}
