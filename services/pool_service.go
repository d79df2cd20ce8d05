package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"tonot_server/models"
	"tonot_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// PoolService owns X10 pool matches: joining (1 chance ticket entry fee),
// the 10th-player start transition, external winner resolution with the
// fixed 450/270/180 split, and the 1-hour refund path.
type PoolService struct {
	Dynamo    *DynamoService
	Notifier  Notifier
	Referrals *ReferralService
	Clock     func() time.Time
}

func (s *PoolService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// JoinPoolResult is the outcome of a pool join.
type JoinPoolResult struct {
	Status   string `json:"status"` // waiting or playing
	MatchID  string `json:"matchId"`
	Position int    `json:"position"` // 1-based join order
}

// ResolvePoolResult reports a pool resolution.
type ResolvePoolResult struct {
	Status  string              `json:"status"`
	Winners []models.PoolWinner `json:"winners"`
}

// JoinPool debits one chance ticket and appends the player to the earliest
// still-waiting pool, creating a new one when none is open. The append is
// guarded by a compare-and-swap on the observed player count, so positions
// are stable and the 10th join is the only one that can start the match.
func (s *PoolService) JoinPool(ctx context.Context, telegramID, username string) (*JoinPoolResult, error) {
	now := s.now()
	ts := models.FormatTime(now)

	if _, err := s.Dynamo.GetItem(ctx, models.WaitingPlayersX10Table, stringKey("telegramId", telegramID)); err == nil {
		return nil, ErrAlreadyInPool
	} else if err != ErrItemNotFound {
		return nil, err
	}

	pool, err := s.findOpenPool(ctx)
	if err != nil {
		return nil, err
	}

	player := models.PoolPlayer{
		TelegramID: telegramID,
		Username:   username,
		CreatedAt:  ts,
		Chance:     models.PoolEntryCost,
	}

	if pool == nil {
		return s.createPool(ctx, player, ts)
	}
	return s.appendToPool(ctx, pool, player, ts)
}

// createPool opens a fresh pool with the player as its first member.
func (s *PoolService) createPool(ctx context.Context, player models.PoolPlayer, ts string) (*JoinPoolResult, error) {
	pool := models.MatchX10{
		MatchID:   uuid.NewString(),
		Players:   []models.PoolPlayer{player},
		Status:    models.PoolStatusWaiting,
		CreatedAt: ts,
	}
	poolItem, err := attributevalue.MarshalMap(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pool match: %w", err)
	}
	entryItem, err := attributevalue.MarshalMap(models.WaitingPlayerX10{
		TelegramID: player.TelegramID,
		Username:   player.Username,
		MatchID:    pool.MatchID,
		JoinedAt:   ts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           tableName(models.MatchesX10Table),
			Item:                poolItem,
			ConditionExpression: exprString("attribute_not_exists(matchId)"),
		}},
		{Update: &types.Update{
			TableName:           tableName(models.UsersTable),
			Key:                 stringKey("telegramId", player.TelegramID),
			UpdateExpression:    exprString("ADD tonotChanceTickets :delta"),
			ConditionExpression: exprString("tonotChanceTickets >= :cost"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -models.PoolEntryCost)},
				":cost":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.PoolEntryCost)},
			},
		}},
		{Put: &types.Put{
			TableName:           tableName(models.WaitingPlayersX10Table),
			Item:                entryItem,
			ConditionExpression: exprString("attribute_not_exists(telegramId)"),
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil {
			if reasonFailed(reasons, 1) {
				return nil, ErrInsufficientChance
			}
			if reasonFailed(reasons, 2) {
				return nil, ErrAlreadyInPool
			}
			return nil, ErrTransactionConflict
		}
		return nil, err
	}

	log.Printf("🎰 Player %s opened pool %s (1/%d)", player.TelegramID, pool.MatchID, models.PoolSize)
	return &JoinPoolResult{Status: models.PoolStatusWaiting, MatchID: pool.MatchID, Position: 1}, nil
}

// appendToPool adds the player to an existing pool. The 10th join also flips
// the pool to playing and clears all ten queue entries in the same
// transaction.
func (s *PoolService) appendToPool(ctx context.Context, pool *models.MatchX10, player models.PoolPlayer, ts string) (*JoinPoolResult, error) {
	seen := len(pool.Players)
	position := seen + 1
	full := position == models.PoolSize

	playerItem, err := attributevalue.MarshalMap(player)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pool player: %w", err)
	}

	updateExpr := "SET players = list_append(players, :p)"
	values := map[string]types.AttributeValue{
		":p":       &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberM{Value: playerItem}}},
		":waiting": &types.AttributeValueMemberS{Value: models.PoolStatusWaiting},
		":seen":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", seen)},
	}
	if full {
		updateExpr = "SET players = list_append(players, :p), #s = :playing, startedAt = :ts"
		values[":playing"] = &types.AttributeValueMemberS{Value: models.PoolStatusPlaying}
		values[":ts"] = &types.AttributeValueMemberS{Value: ts}
	}

	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                 tableName(models.MatchesX10Table),
			Key:                       stringKey("matchId", pool.MatchID),
			UpdateExpression:          exprString(updateExpr),
			ConditionExpression:       exprString("#s = :waiting AND size(players) = :seen"),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: values,
		}},
		{Update: &types.Update{
			TableName:           tableName(models.UsersTable),
			Key:                 stringKey("telegramId", player.TelegramID),
			UpdateExpression:    exprString("ADD tonotChanceTickets :delta"),
			ConditionExpression: exprString("tonotChanceTickets >= :cost"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -models.PoolEntryCost)},
				":cost":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.PoolEntryCost)},
			},
		}},
	}

	if full {
		// The pool is done waiting: every member's queue entry goes away.
		for _, p := range pool.Players {
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName: tableName(models.WaitingPlayersX10Table),
				Key:       stringKey("telegramId", p.TelegramID),
			}})
		}
	} else {
		entryItem, err := attributevalue.MarshalMap(models.WaitingPlayerX10{
			TelegramID: player.TelegramID,
			Username:   player.Username,
			MatchID:    pool.MatchID,
			JoinedAt:   ts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queue entry: %w", err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           tableName(models.WaitingPlayersX10Table),
			Item:                entryItem,
			ConditionExpression: exprString("attribute_not_exists(telegramId)"),
		}})
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil {
			if reasonFailed(reasons, 1) {
				return nil, ErrInsufficientChance
			}
			if !full && reasonFailed(reasons, 2) {
				return nil, ErrAlreadyInPool
			}
			// Pool filled, shrank, or was canceled between scan and write.
			return nil, ErrTransactionConflict
		}
		return nil, err
	}

	if !full {
		log.Printf("🎰 Player %s joined pool %s (%d/%d)", player.TelegramID, pool.MatchID, position, models.PoolSize)
		return &JoinPoolResult{Status: models.PoolStatusWaiting, MatchID: pool.MatchID, Position: position}, nil
	}

	allPlayers := append(append([]models.PoolPlayer{}, pool.Players...), player)
	log.Printf("🚀 Pool %s is full, match started with %d players", pool.MatchID, len(allPlayers))

	if s.Referrals != nil {
		for _, p := range allPlayers {
			s.Referrals.MarkRoomBPlayed(ctx, p.TelegramID)
		}
	}

	payload := map[string]interface{}{
		"matchId":   pool.MatchID,
		"players":   allPlayers,
		"startedAt": ts,
	}
	if s.Notifier != nil {
		s.Notifier.Emit(pool.MatchID, "poolStarted", payload)
	}
	for _, p := range allPlayers {
		s.notify(p.TelegramID, "poolStarted", payload)
	}

	return &JoinPoolResult{Status: models.PoolStatusPlaying, MatchID: pool.MatchID, Position: position}, nil
}

// ResolvePool applies an externally drawn winner set to a playing pool.
// The status flip and all three prize credits are one transaction; a bad
// winner set is rejected before anything is written.
func (s *PoolService) ResolvePool(ctx context.Context, matchID string, winners []models.PoolWinner) (*ResolvePoolResult, error) {
	pool, err := s.getPool(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if err := validateWinnerSet(pool, winners); err != nil {
		return nil, err
	}
	if pool.Status != models.PoolStatusPlaying {
		return nil, ErrPoolNotPlaying
	}

	// Usernames come from the pool record, not from the caller.
	for i := range winners {
		winners[i].Username = pool.Players[pool.PlayerIndex(winners[i].TelegramID)].Username
	}

	ts := models.FormatTime(s.now())
	winnersAttr, err := attributevalue.Marshal(winners)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal winners: %w", err)
	}

	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                tableName(models.MatchesX10Table),
			Key:                      stringKey("matchId", matchID),
			UpdateExpression:         exprString("SET #s = :completed, winners = :winners, completedAt = :ts"),
			ConditionExpression:      exprString("#s = :playing"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":completed": &types.AttributeValueMemberS{Value: models.PoolStatusCompleted},
				":winners":   winnersAttr,
				":ts":        &types.AttributeValueMemberS{Value: ts},
				":playing":   &types.AttributeValueMemberS{Value: models.PoolStatusPlaying},
			},
		}},
	}

	for _, w := range winners {
		entry, err := marshalGameRecord(models.GameRecord{
			MatchID: matchID, Mode: "x10", Won: true, Delta: w.Prize, CreatedAt: ts,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:        tableName(models.UsersTable),
			Key:              stringKey("telegramId", w.TelegramID),
			UpdateExpression: exprString("SET gameHistory = list_append(gameHistory, :entry) ADD balance :prize"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":entry": entry,
				":prize": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", w.Prize)},
			},
		}})
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil && reasonFailed(reasons, 0) {
			return nil, ErrPoolNotPlaying
		}
		return nil, err
	}

	log.Printf("🏆 Pool %s resolved: %d winners, %d credited in total",
		matchID, len(winners), models.PrizeFirst+models.PrizeSecond+models.PrizeThird)

	payload := map[string]interface{}{
		"matchId": matchID,
		"winners": winners,
	}
	if s.Notifier != nil {
		s.Notifier.Emit(matchID, "poolResolved", payload)
	}
	for _, p := range pool.Players {
		s.notify(p.TelegramID, "poolResolved", payload)
	}

	return &ResolvePoolResult{Status: models.PoolStatusCompleted, Winners: winners}, nil
}

// CancelPoolEntry refunds a waiting X10 player. Only allowed once the entry
// is at least an hour old; the queue entry removal, the pool slot removal,
// and the ticket credit are all-or-nothing.
func (s *PoolService) CancelPoolEntry(ctx context.Context, telegramID string) (*CancelResult, error) {
	item, err := s.Dynamo.GetItem(ctx, models.WaitingPlayersX10Table, stringKey("telegramId", telegramID))
	if err != nil {
		if err == ErrItemNotFound {
			return nil, ErrNothingToCancel
		}
		return nil, err
	}
	var entry models.WaitingPlayerX10
	if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}

	if s.now().Sub(models.ParseTime(entry.JoinedAt)) < models.X10RefundEligible {
		return nil, ErrRefundNotEligible
	}

	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           tableName(models.WaitingPlayersX10Table),
			Key:                 stringKey("telegramId", telegramID),
			ConditionExpression: exprString("attribute_exists(telegramId)"),
		}},
		{Update: &types.Update{
			TableName:        tableName(models.UsersTable),
			Key:              stringKey("telegramId", telegramID),
			UpdateExpression: exprString("ADD tonotChanceTickets :refund"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":refund": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.PoolEntryCost)},
			},
		}},
	}

	// Free the pool slot too, when the pool is still waiting and holds us.
	// A pool already swept to canceled keeps its player list as history.
	if pool, err := s.getPool(ctx, entry.MatchID); err == nil && pool.Status == models.PoolStatusWaiting {
		if idx := pool.PlayerIndex(telegramID); idx >= 0 {
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:                tableName(models.MatchesX10Table),
				Key:                      stringKey("matchId", entry.MatchID),
				UpdateExpression:         exprString(fmt.Sprintf("REMOVE players[%d]", idx)),
				ConditionExpression:      exprString(fmt.Sprintf("#s = :waiting AND players[%d].telegramId = :tid", idx)),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":waiting": &types.AttributeValueMemberS{Value: models.PoolStatusWaiting},
					":tid":     &types.AttributeValueMemberS{Value: telegramID},
				},
			}})
		}
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if TransactionCancellationReasons(err) != nil {
			return nil, ErrTransactionConflict
		}
		return nil, err
	}

	log.Printf("💸 Player %s refunded out of pool %s", telegramID, entry.MatchID)
	return &CancelResult{Refunded: true, MatchCanceled: false}, nil
}

// GetCurrentPool returns the waiting or playing pool containing the player.
func (s *PoolService) GetCurrentPool(ctx context.Context, telegramID string) (*models.MatchX10, error) {
	var pools []models.MatchX10
	err := s.Dynamo.ScanWithFilter(ctx, models.MatchesX10Table, func(item map[string]types.AttributeValue) bool {
		status := utils.ExtractString(item, "status")
		return status == models.PoolStatusWaiting || status == models.PoolStatusPlaying
	}, &pools)
	if err != nil {
		return nil, err
	}
	for i := range pools {
		if pools[i].PlayerIndex(telegramID) >= 0 {
			return &pools[i], nil
		}
	}
	return nil, ErrMatchNotFound
}

func (s *PoolService) getPool(ctx context.Context, matchID string) (*models.MatchX10, error) {
	item, err := s.Dynamo.GetItem(ctx, models.MatchesX10Table, stringKey("matchId", matchID))
	if err != nil {
		if err == ErrItemNotFound {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	var pool models.MatchX10
	if err := attributevalue.UnmarshalMap(item, &pool); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pool match: %w", err)
	}
	return &pool, nil
}

// findOpenPool returns the earliest waiting pool with a free slot.
func (s *PoolService) findOpenPool(ctx context.Context) (*models.MatchX10, error) {
	var pools []models.MatchX10
	err := s.Dynamo.ScanWithFilter(ctx, models.MatchesX10Table, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "status") == models.PoolStatusWaiting &&
			utils.ExtractListLen(item, "players") < models.PoolSize
	}, &pools)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, nil
	}

	oldest := 0
	for i := range pools {
		if pools[i].CreatedAt < pools[oldest].CreatedAt {
			oldest = i
		}
	}
	return &pools[oldest], nil
}

func (s *PoolService) notify(telegramID, event string, payload interface{}) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Emit(PlayerRoom(telegramID), event, payload)
}

// validateWinnerSet enforces the fixed prize split: exactly three distinct
// pool members holding positions {1,2,3} with the per-position amounts.
func validateWinnerSet(pool *models.MatchX10, winners []models.PoolWinner) error {
	if len(winners) != models.PoolWinnerCount {
		return ErrInvalidWinnerSet
	}
	seenPositions := map[int]bool{}
	seenPlayers := map[string]bool{}
	for _, w := range winners {
		prize, ok := models.PrizeByPosition[w.Position]
		if !ok || seenPositions[w.Position] {
			return ErrInvalidWinnerSet
		}
		if w.Prize != prize {
			return ErrInvalidWinnerSet
		}
		if w.TelegramID == "" || seenPlayers[w.TelegramID] {
			return ErrInvalidWinnerSet
		}
		if pool.PlayerIndex(w.TelegramID) < 0 {
			return ErrInvalidWinnerSet
		}
		seenPositions[w.Position] = true
		seenPlayers[w.TelegramID] = true
	}
	return nil
}
