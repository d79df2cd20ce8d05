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
)

// ReferralService tracks referral records and the two qualifying plays
// (room A = 1v1, room B = X10) that make a referral valid. The validity
// flip credits the referrer's bonus exactly once, in the same transaction.
type ReferralService struct {
	Dynamo *DynamoService
	Clock  func() time.Time
}

func (s *ReferralService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// ReferralStats summarizes a referrer's invitees.
type ReferralStats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Pending int `json:"pending"`
}

// CreateReferral records that refererID invited inviteeID. Keyed by the
// invitee, so a player can only be referred once; the referrer's referredBy
// edge is written in the same transaction.
func (s *ReferralService) CreateReferral(ctx context.Context, refererID, inviteeID string) error {
	referral := models.Referral{
		ReferralID: inviteeID,
		RefererID:  refererID,
		CreatedAt:  models.FormatTime(s.now()),
	}
	referralItem, err := attributevalue.MarshalMap(referral)
	if err != nil {
		return fmt.Errorf("failed to marshal referral: %w", err)
	}
	inviteeAttr := &types.AttributeValueMemberL{
		Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: inviteeID}},
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           tableName(models.ReferralsTable),
			Item:                referralItem,
			ConditionExpression: exprString("attribute_not_exists(referralId)"),
		}},
		{Update: &types.Update{
			TableName:                 tableName(models.UsersTable),
			Key:                       stringKey("telegramId", refererID),
			UpdateExpression:          exprString("SET referredBy = list_append(referredBy, :invitee)"),
			ConditionExpression:       exprString("attribute_exists(telegramId)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":invitee": inviteeAttr},
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if TransactionCancellationReasons(err) != nil {
			return ErrTransactionConflict
		}
		return err
	}
	log.Printf("🤝 Referral recorded: %s invited %s", refererID, inviteeID)
	return nil
}

// MarkRoomAPlayed records a qualifying 1v1 play for the invitee. Best
// effort: called after match settlement, never fails the settlement.
func (s *ReferralService) MarkRoomAPlayed(ctx context.Context, telegramID string) {
	s.markPlayed(ctx, telegramID, "hasPlayedRoomA", "roomAPlayedAt")
}

// MarkRoomBPlayed records a qualifying X10 play for the invitee.
func (s *ReferralService) MarkRoomBPlayed(ctx context.Context, telegramID string) {
	s.markPlayed(ctx, telegramID, "hasPlayedRoomB", "roomBPlayedAt")
}

func (s *ReferralService) markPlayed(ctx context.Context, telegramID, flagAttr, stampAttr string) {
	_, err := s.Dynamo.UpdateItemWithCondition(ctx, models.ReferralsTable,
		fmt.Sprintf("SET %s = :played, %s = :ts", flagAttr, stampAttr),
		fmt.Sprintf("attribute_exists(referralId) AND %s = :notPlayed", flagAttr),
		stringKey("referralId", telegramID),
		map[string]types.AttributeValue{
			":played":    &types.AttributeValueMemberBOOL{Value: true},
			":notPlayed": &types.AttributeValueMemberBOOL{Value: false},
			":ts":        &types.AttributeValueMemberS{Value: models.FormatTime(s.now())},
		},
		nil,
	)
	if err != nil {
		if !IsConditionalCheckFailed(err) {
			log.Printf("⚠️ Failed to mark %s for %s: %v", flagAttr, telegramID, err)
		}
		// Not referred, or this room already counted. Either way the
		// validation below may still be owed from an earlier crash.
	}
	s.maybeValidate(ctx, telegramID)
}

// maybeValidate flips the referral to valid once both qualifying plays are
// stamped strictly after the record's creation, crediting the referrer's
// bonus in the same transaction. Losing the compare-and-swap means another
// request already credited it.
func (s *ReferralService) maybeValidate(ctx context.Context, telegramID string) {
	referral, err := s.getReferral(ctx, telegramID)
	if err != nil || referral.IsValid {
		return
	}
	if !referral.HasPlayedRoomA || !referral.HasPlayedRoomB {
		return
	}

	created := models.ParseTime(referral.CreatedAt)
	if !models.ParseTime(referral.RoomAPlayedAt).After(created) ||
		!models.ParseTime(referral.RoomBPlayedAt).After(created) {
		return
	}

	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:           tableName(models.ReferralsTable),
			Key:                 stringKey("referralId", telegramID),
			UpdateExpression:    exprString("SET isValid = :valid, bonusCredited = :valid"),
			ConditionExpression: exprString("isValid = :invalid AND hasPlayedRoomA = :valid AND hasPlayedRoomB = :valid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":valid":   &types.AttributeValueMemberBOOL{Value: true},
				":invalid": &types.AttributeValueMemberBOOL{Value: false},
			},
		}},
		{Update: &types.Update{
			TableName:        tableName(models.UsersTable),
			Key:              stringKey("telegramId", referral.RefererID),
			UpdateExpression: exprString("ADD tonotChanceTickets :bonus"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":bonus": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.ReferralBonusTickets)},
			},
		}},
	}

	if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
		if TransactionCancellationReasons(err) == nil {
			log.Printf("⚠️ Failed to validate referral for %s: %v", telegramID, err)
		}
		return
	}
	log.Printf("✅ Referral for %s is now valid, referrer %s credited", telegramID, referral.RefererID)
}

// GetStats counts a referrer's invitees.
func (s *ReferralService) GetStats(ctx context.Context, refererID string) (*ReferralStats, error) {
	var referrals []models.Referral
	err := s.Dynamo.ScanWithFilter(ctx, models.ReferralsTable, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "refererId") == refererID
	}, &referrals)
	if err != nil {
		return nil, err
	}

	stats := &ReferralStats{Total: len(referrals)}
	for _, r := range referrals {
		if r.IsValid {
			stats.Valid++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

func (s *ReferralService) getReferral(ctx context.Context, telegramID string) (*models.Referral, error) {
	item, err := s.Dynamo.GetItem(ctx, models.ReferralsTable, stringKey("referralId", telegramID))
	if err != nil {
		return nil, err
	}
	var referral models.Referral
	if err := attributevalue.UnmarshalMap(item, &referral); err != nil {
		return nil, fmt.Errorf("failed to unmarshal referral: %w", err)
	}
	return &referral, nil
}
