package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"tonot_server/models"
	"tonot_server/utils"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ReaperService sweeps stale waiting state. It runs at request time (the
// join handlers call it opportunistically) and from an admin endpoint; there
// is no background scheduler. The sweep is not atomic across records: each
// match or queue entry transitions in its own idempotent step, so a crash
// mid-sweep leaves nothing half-done.
type ReaperService struct {
	Matches *MatchService
	Pools   *PoolService
	Dynamo  *DynamoService
	Clock   func() time.Time
}

func (s *ReaperService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// SweepResult counts what one sweep pass changed.
type SweepResult struct {
	CanceledMatches     int `json:"canceledMatches"`
	RemovedQueueEntries int `json:"removedQueueEntries"`
}

// SweepStale cancels 1v1 matches stuck past the staleness threshold
// (refunding both stakes), deletes expired 1v1 queue entries, cancels
// abandoned X10 pools (refunding entry tickets), and clears orphaned X10
// queue entries.
func (s *ReaperService) SweepStale(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := s.now()

	if err := s.sweepMatches(ctx, now, result); err != nil {
		return nil, err
	}
	if err := s.sweepQueue(ctx, now, result); err != nil {
		return nil, err
	}
	if err := s.sweepPools(ctx, now, result); err != nil {
		return nil, err
	}
	if err := s.sweepOrphanEntries(ctx, now, result); err != nil {
		return nil, err
	}

	if result.CanceledMatches > 0 || result.RemovedQueueEntries > 0 {
		log.Printf("🧹 Sweep: %d matches canceled, %d queue entries removed",
			result.CanceledMatches, result.RemovedQueueEntries)
	}
	return result, nil
}

// sweepMatches cancels active 1v1 matches older than MatchStaleAfter.
func (s *ReaperService) sweepMatches(ctx context.Context, now time.Time, result *SweepResult) error {
	cutoff := models.FormatTime(now.Add(-models.MatchStaleAfter))

	var stale []models.Match
	err := s.Dynamo.ScanWithFilter(ctx, models.MatchesTable, func(item map[string]types.AttributeValue) bool {
		status := utils.ExtractString(item, "status")
		if status != models.MatchStatusWaiting && status != models.MatchStatusMatched {
			return false
		}
		return utils.ExtractString(item, "createdAt") < cutoff
	}, &stale)
	if err != nil {
		return err
	}

	for i := range stale {
		err := s.Matches.cancelMatchAndRefund(ctx, &stale[i], models.CancelReasonTimeout)
		if err == ErrTransactionConflict {
			continue // settled while we were sweeping
		}
		if err != nil {
			return fmt.Errorf("sweep of match %s: %w", stale[i].MatchID, err)
		}
		result.CanceledMatches++
	}
	return nil
}

// sweepQueue hard-deletes expired 1v1 queue entries. Nothing was debited
// while waiting, so there is nothing to refund.
func (s *ReaperService) sweepQueue(ctx context.Context, now time.Time, result *SweepResult) error {
	nowStr := models.FormatTime(now)

	var expired []models.WaitingPlayer
	err := s.Dynamo.ScanWithFilter(ctx, models.WaitingPlayersTable, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "expiresAt") <= nowStr
	}, &expired)
	if err != nil {
		return err
	}

	for _, e := range expired {
		if err := s.Dynamo.DeleteItem(ctx, models.WaitingPlayersTable, stringKey("telegramId", e.TelegramID)); err != nil {
			return fmt.Errorf("sweep of queue entry %s: %w", e.TelegramID, err)
		}
		result.RemovedQueueEntries++
	}
	return nil
}

// sweepPools cancels waiting X10 pools older than X10PoolStaleAfter. Every
// joined player paid an entry ticket, so the cancellation refunds all of
// them and clears their queue entries in one transaction per pool.
func (s *ReaperService) sweepPools(ctx context.Context, now time.Time, result *SweepResult) error {
	cutoff := models.FormatTime(now.Add(-models.X10PoolStaleAfter))

	var stale []models.MatchX10
	err := s.Dynamo.ScanWithFilter(ctx, models.MatchesX10Table, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "status") == models.PoolStatusWaiting &&
			utils.ExtractString(item, "createdAt") < cutoff
	}, &stale)
	if err != nil {
		return err
	}

	for i := range stale {
		pool := &stale[i]
		items := []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:        tableName(models.MatchesX10Table),
				Key:              stringKey("matchId", pool.MatchID),
				UpdateExpression: exprString("SET #s = :canceled, cancelReason = :reason"),
				// The size condition pins the scanned snapshot: the refunds
				// below are per scanned player, so a join or refund-cancel
				// landing after the scan must abort the whole transaction.
				ConditionExpression:      exprString("#s = :waiting AND size(players) = :count"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":canceled": &types.AttributeValueMemberS{Value: models.PoolStatusCanceled},
					":reason":   &types.AttributeValueMemberS{Value: models.CancelReasonTimeout},
					":waiting":  &types.AttributeValueMemberS{Value: models.PoolStatusWaiting},
					":count":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", len(pool.Players))},
				},
			}},
		}
		for _, p := range pool.Players {
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:        tableName(models.UsersTable),
				Key:              stringKey("telegramId", p.TelegramID),
				UpdateExpression: exprString("ADD tonotChanceTickets :refund"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":refund": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.PoolEntryCost)},
				},
			}})
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName: tableName(models.WaitingPlayersX10Table),
				Key:       stringKey("telegramId", p.TelegramID),
			}})
			result.RemovedQueueEntries++
		}

		if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
			if TransactionCancellationReasons(err) != nil {
				result.RemovedQueueEntries -= len(pool.Players)
				continue // pool changed under the scan, next sweep retries
			}
			return fmt.Errorf("sweep of pool %s: %w", pool.MatchID, err)
		}
		result.CanceledMatches++
	}
	return nil
}

// sweepOrphanEntries deletes X10 queue entries past the orphan TTL whose
// pool no longer holds them (filled pools clear their own entries; this
// catches leftovers of canceled pools). No refund on this path: the refund
// is the explicit eligibility-gated cancel, not the sweep.
func (s *ReaperService) sweepOrphanEntries(ctx context.Context, now time.Time, result *SweepResult) error {
	cutoff := models.FormatTime(now.Add(-models.X10OrphanEntryTTL))

	var old []models.WaitingPlayerX10
	err := s.Dynamo.ScanWithFilter(ctx, models.WaitingPlayersX10Table, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "joinedAt") < cutoff
	}, &old)
	if err != nil {
		return err
	}

	for _, e := range old {
		pool, err := s.Pools.getPool(ctx, e.MatchID)
		if err == nil && pool.Status == models.PoolStatusWaiting && pool.PlayerIndex(e.TelegramID) >= 0 {
			continue // still a live member, sweepPools owns this case
		}
		if err != nil && err != ErrMatchNotFound {
			return err
		}
		if err := s.Dynamo.DeleteItem(ctx, models.WaitingPlayersX10Table, stringKey("telegramId", e.TelegramID)); err != nil {
			return fmt.Errorf("sweep of x10 entry %s: %w", e.TelegramID, err)
		}
		result.RemovedQueueEntries++
	}
	return nil
}
