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

// MatchService owns the 1v1 queue and match lifecycle: pairing, completion,
// cancellation. Stakes are debited from both players inside the pairing
// transaction; the winner is credited 2x stake at completion and the loser
// is never debited a second time.
type MatchService struct {
	Dynamo    *DynamoService
	Notifier  Notifier
	Referrals *ReferralService
	Clock     func() time.Time
}

func (s *MatchService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// JoinQueueResult is the outcome of a join request.
type JoinQueueResult struct {
	Status       string `json:"status"` // waiting or matched
	MatchID      string `json:"matchId,omitempty"`
	OpponentID   string `json:"opponentId,omitempty"`
	OpponentName string `json:"opponentName,omitempty"`
}

// CompleteMatchResult reports a completion, including the idempotent replay
// of an already-completed match.
type CompleteMatchResult struct {
	Status         string `json:"status"`
	WinnerID       string `json:"winnerId"`
	CreditedAmount int64  `json:"creditedAmount"`
}

// CancelResult reports what a cancel request actually did.
type CancelResult struct {
	Refunded      bool `json:"refunded"`
	MatchCanceled bool `json:"matchCanceled"`
}

// JoinQueue pairs the player with a waiting opponent at the same stake, or
// enqueues them when none is available. Pairing removes the partner's queue
// entry, creates the match, and debits both stakes in one transaction; if
// either balance check fails the queue is left untouched.
func (s *MatchService) JoinQueue(ctx context.Context, telegramID, username string, stake int64) (*JoinQueueResult, error) {
	now := s.now()

	if _, err := s.findActiveMatch(ctx, telegramID); err == nil {
		return nil, ErrAlreadyInMatch
	} else if err != ErrMatchNotFound {
		return nil, err
	}

	// A queued player must cancel before joining again, at any stake.
	// Pairing while the old entry survives would let a third player pair
	// against it and double-book this one.
	if _, err := s.Dynamo.GetItem(ctx, models.WaitingPlayersTable, stringKey("telegramId", telegramID)); err == nil {
		return nil, ErrAlreadyWaiting
	} else if err != ErrItemNotFound {
		return nil, err
	}

	partner, err := s.findQueuePartner(ctx, telegramID, stake, now)
	if err != nil {
		return nil, err
	}

	if partner == nil {
		entry := models.WaitingPlayer{
			TelegramID:    telegramID,
			Username:      username,
			TicketsAmount: stake,
			CreatedAt:     models.FormatTime(now),
			ExpiresAt:     models.FormatTime(now.Add(models.QueueEntryTTL)),
		}
		if err := s.Dynamo.PutItemIfAbsent(ctx, models.WaitingPlayersTable, entry, "telegramId"); err != nil {
			if IsConditionalCheckFailed(err) {
				return nil, ErrAlreadyWaiting
			}
			return nil, err
		}
		log.Printf("🎲 Player %s waiting for an opponent (stake %d)", telegramID, stake)
		return &JoinQueueResult{Status: models.MatchStatusWaiting}, nil
	}

	match := models.Match{
		MatchID:       uuid.NewString(),
		Player1ID:     partner.TelegramID,
		Player1Name:   partner.Username,
		Player2ID:     telegramID,
		Player2Name:   username,
		TicketsAmount: stake,
		Status:        models.MatchStatusMatched,
		CreatedAt:     models.FormatTime(now),
	}
	matchItem, err := attributevalue.MarshalMap(match)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match: %w", err)
	}

	negStake := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -stake)}
	stakeVal := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", stake)}
	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           tableName(models.WaitingPlayersTable),
			Key:                 stringKey("telegramId", partner.TelegramID),
			ConditionExpression: exprString("attribute_exists(telegramId)"),
		}},
		{Put: &types.Put{
			TableName:           tableName(models.MatchesTable),
			Item:                matchItem,
			ConditionExpression: exprString("attribute_not_exists(matchId)"),
		}},
		{Update: &types.Update{
			TableName:                 tableName(models.UsersTable),
			Key:                       stringKey("telegramId", telegramID),
			UpdateExpression:          exprString("ADD tickets :delta"),
			ConditionExpression:       exprString("tickets >= :stake"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":delta": negStake, ":stake": stakeVal},
		}},
		{Update: &types.Update{
			TableName:                 tableName(models.UsersTable),
			Key:                       stringKey("telegramId", partner.TelegramID),
			UpdateExpression:          exprString("ADD tickets :delta"),
			ConditionExpression:       exprString("tickets >= :stake"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":delta": negStake, ":stake": stakeVal},
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil {
			if reasonFailed(reasons, 2) || reasonFailed(reasons, 3) {
				return nil, ErrInsufficientTickets
			}
			// Partner entry vanished or match id collided under our feet.
			return nil, ErrTransactionConflict
		}
		return nil, err
	}

	log.Printf("⚔️ Match %s created: %s vs %s (stake %d)", match.MatchID, partner.TelegramID, telegramID, stake)

	s.notify(partner.TelegramID, "matchFound", map[string]interface{}{
		"matchId":      match.MatchID,
		"opponentId":   telegramID,
		"opponentName": username,
		"stake":        stake,
	})
	s.notify(telegramID, "matchFound", map[string]interface{}{
		"matchId":      match.MatchID,
		"opponentId":   partner.TelegramID,
		"opponentName": partner.Username,
		"stake":        stake,
	})

	return &JoinQueueResult{
		Status:       models.MatchStatusMatched,
		MatchID:      match.MatchID,
		OpponentID:   partner.TelegramID,
		OpponentName: partner.Username,
	}, nil
}

// CompleteMatch settles a match in the winner's favor. Valid only while the
// match still holds the stakes; the status flip, the 2x stake credit, and
// both game-history entries are one transaction. Replaying a completed match
// returns the stored result without crediting again.
func (s *MatchService) CompleteMatch(ctx context.Context, matchID, winnerID string) (*CompleteMatchResult, error) {
	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	credit := 2 * match.TicketsAmount

	if match.Status == models.MatchStatusCompleted {
		if match.WinnerID == winnerID {
			return &CompleteMatchResult{Status: match.Status, WinnerID: match.WinnerID, CreditedAmount: credit}, nil
		}
		return nil, ErrMatchNotActive
	}
	if !match.IsActive() {
		return nil, ErrMatchNotActive
	}
	if !match.HasPlayer(winnerID) {
		return nil, ErrWinnerNotInMatch
	}

	loserID := match.Player1ID
	if loserID == winnerID {
		loserID = match.Player2ID
	}

	now := s.now()
	ts := models.FormatTime(now)

	winnerEntry, err := marshalGameRecord(models.GameRecord{
		MatchID: matchID, Mode: "1v1", Won: true, Delta: credit - match.TicketsAmount, CreatedAt: ts,
	})
	if err != nil {
		return nil, err
	}
	loserEntry, err := marshalGameRecord(models.GameRecord{
		MatchID: matchID, Mode: "1v1", Won: false, Delta: -match.TicketsAmount, CreatedAt: ts,
	})
	if err != nil {
		return nil, err
	}

	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:           tableName(models.MatchesTable),
			Key:                 stringKey("matchId", matchID),
			UpdateExpression:    exprString("SET #s = :completed, completedAt = :ts, winnerId = :winner"),
			ConditionExpression: exprString("#s IN (:waiting, :matched)"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":completed": &types.AttributeValueMemberS{Value: models.MatchStatusCompleted},
				":ts":        &types.AttributeValueMemberS{Value: ts},
				":winner":    &types.AttributeValueMemberS{Value: winnerID},
				":waiting":   &types.AttributeValueMemberS{Value: models.MatchStatusWaiting},
				":matched":   &types.AttributeValueMemberS{Value: models.MatchStatusMatched},
			},
		}},
		{Update: &types.Update{
			TableName:        tableName(models.UsersTable),
			Key:              stringKey("telegramId", winnerID),
			UpdateExpression: exprString("SET gameHistory = list_append(gameHistory, :entry) ADD tickets :credit"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":entry":  winnerEntry,
				":credit": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", credit)},
			},
		}},
		{Update: &types.Update{
			TableName:        tableName(models.UsersTable),
			Key:              stringKey("telegramId", loserID),
			UpdateExpression: exprString("SET gameHistory = list_append(gameHistory, :entry)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":entry": loserEntry,
			},
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil && reasonFailed(reasons, 0) {
			// Lost the race: someone else settled or canceled this match.
			settled, gerr := s.getMatch(ctx, matchID)
			if gerr == nil && settled.Status == models.MatchStatusCompleted && settled.WinnerID == winnerID {
				return &CompleteMatchResult{Status: settled.Status, WinnerID: settled.WinnerID, CreditedAmount: credit}, nil
			}
			return nil, ErrMatchNotActive
		}
		return nil, err
	}

	log.Printf("🏆 Match %s completed, winner %s credited %d", matchID, winnerID, credit)

	if s.Referrals != nil {
		s.Referrals.MarkRoomAPlayed(ctx, winnerID)
		s.Referrals.MarkRoomAPlayed(ctx, loserID)
	}

	payload := map[string]interface{}{
		"matchId":        matchID,
		"winnerId":       winnerID,
		"creditedAmount": credit,
	}
	s.notify(winnerID, "matchCompleted", payload)
	s.notify(loserID, "matchCompleted", payload)
	if s.Notifier != nil {
		s.Notifier.Emit(matchID, "matchCompleted", payload)
	}

	return &CompleteMatchResult{Status: models.MatchStatusCompleted, WinnerID: winnerID, CreditedAmount: credit}, nil
}

// CancelQueueOrMatch cancels the player's active match (refunding both
// stakes) or, failing that, removes their queue entry. ErrNothingToCancel
// means neither existed, e.g. the sweep already removed the entry.
func (s *MatchService) CancelQueueOrMatch(ctx context.Context, telegramID string) (*CancelResult, error) {
	match, err := s.findActiveMatch(ctx, telegramID)
	if err == nil {
		if err := s.cancelMatchAndRefund(ctx, match, models.CancelReasonPlayer); err != nil {
			return nil, err
		}
		payload := map[string]interface{}{"matchId": match.MatchID, "reason": models.CancelReasonPlayer}
		s.notify(match.Player1ID, "matchCanceled", payload)
		s.notify(match.Player2ID, "matchCanceled", payload)
		return &CancelResult{Refunded: true, MatchCanceled: true}, nil
	}
	if err != ErrMatchNotFound {
		return nil, err
	}

	key := stringKey("telegramId", telegramID)
	if _, err := s.Dynamo.GetItem(ctx, models.WaitingPlayersTable, key); err != nil {
		if err == ErrItemNotFound {
			return nil, ErrNothingToCancel
		}
		return nil, err
	}
	if err := s.Dynamo.DeleteItem(ctx, models.WaitingPlayersTable, key); err != nil {
		return nil, err
	}
	log.Printf("🚪 Player %s left the 1v1 queue", telegramID)
	return &CancelResult{Refunded: false, MatchCanceled: false}, nil
}

// GetCurrentMatch returns the active match containing the player, if any.
func (s *MatchService) GetCurrentMatch(ctx context.Context, telegramID string) (*models.Match, error) {
	return s.findActiveMatch(ctx, telegramID)
}

// cancelMatchAndRefund flips an active match to canceled and refunds both
// stakes in one transaction. Reapplying it to a settled match fails the
// status condition and changes nothing, which is what makes the sweep
// idempotent.
func (s *MatchService) cancelMatchAndRefund(ctx context.Context, match *models.Match, reason string) error {
	stakeVal := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", match.TicketsAmount)}
	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:           tableName(models.MatchesTable),
			Key:                 stringKey("matchId", match.MatchID),
			UpdateExpression:    exprString("SET #s = :canceled, canceledAt = :ts, cancelReason = :reason"),
			ConditionExpression: exprString("#s IN (:waiting, :matched)"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":canceled": &types.AttributeValueMemberS{Value: models.MatchStatusCanceled},
				":ts":       &types.AttributeValueMemberS{Value: models.FormatTime(s.now())},
				":reason":   &types.AttributeValueMemberS{Value: reason},
				":waiting":  &types.AttributeValueMemberS{Value: models.MatchStatusWaiting},
				":matched":  &types.AttributeValueMemberS{Value: models.MatchStatusMatched},
			},
		}},
		{Update: &types.Update{
			TableName:                 tableName(models.UsersTable),
			Key:                       stringKey("telegramId", match.Player1ID),
			UpdateExpression:          exprString("ADD tickets :stake"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":stake": stakeVal},
		}},
		{Update: &types.Update{
			TableName:                 tableName(models.UsersTable),
			Key:                       stringKey("telegramId", match.Player2ID),
			UpdateExpression:          exprString("ADD tickets :stake"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":stake": stakeVal},
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if reasons := TransactionCancellationReasons(err); reasons != nil && reasonFailed(reasons, 0) {
			return ErrTransactionConflict
		}
		return err
	}
	log.Printf("❌ Match %s canceled (%s), both stakes refunded", match.MatchID, reason)
	return nil
}

func (s *MatchService) getMatch(ctx context.Context, matchID string) (*models.Match, error) {
	item, err := s.Dynamo.GetItem(ctx, models.MatchesTable, stringKey("matchId", matchID))
	if err != nil {
		if err == ErrItemNotFound {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	var match models.Match
	if err := attributevalue.UnmarshalMap(item, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return &match, nil
}

// findActiveMatch scans for a waiting/matched match containing the player.
func (s *MatchService) findActiveMatch(ctx context.Context, telegramID string) (*models.Match, error) {
	var matches []models.Match
	err := s.Dynamo.ScanWithFilter(ctx, models.MatchesTable, func(item map[string]types.AttributeValue) bool {
		status := utils.ExtractString(item, "status")
		if status != models.MatchStatusWaiting && status != models.MatchStatusMatched {
			return false
		}
		return utils.ExtractString(item, "player1Id") == telegramID || utils.ExtractString(item, "player2Id") == telegramID
	}, &matches)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrMatchNotFound
	}
	return &matches[0], nil
}

// findQueuePartner returns the oldest unexpired queue entry at the same
// stake from another player. Expired entries are never valid candidates;
// the sweep deletes them, this filter merely refuses to pair against one
// that has not been swept yet.
func (s *MatchService) findQueuePartner(ctx context.Context, telegramID string, stake int64, now time.Time) (*models.WaitingPlayer, error) {
	nowStr := models.FormatTime(now)
	var waiting []models.WaitingPlayer
	err := s.Dynamo.ScanWithFilter(ctx, models.WaitingPlayersTable, func(item map[string]types.AttributeValue) bool {
		if utils.ExtractString(item, "telegramId") == telegramID {
			return false
		}
		if utils.ExtractInt(item, "ticketsAmount") != stake {
			return false
		}
		return utils.ExtractString(item, "expiresAt") > nowStr
	}, &waiting)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, nil
	}

	oldest := waiting[0]
	for _, w := range waiting[1:] {
		if w.CreatedAt < oldest.CreatedAt {
			oldest = w
		}
	}
	return &oldest, nil
}

func (s *MatchService) notify(telegramID, event string, payload interface{}) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Emit(PlayerRoom(telegramID), event, payload)
}

func marshalGameRecord(rec models.GameRecord) (types.AttributeValue, error) {
	m, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game record: %w", err)
	}
	return &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberM{Value: m}}}, nil
}

func tableName(name string) *string { return &name }

func exprString(s string) *string { return &s }

func stringKey(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attr: &types.AttributeValueMemberS{Value: value},
	}
}
