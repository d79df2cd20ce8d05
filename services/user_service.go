package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"tonot_server/models"
	"tonot_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// UserService manages user records: creation with seeded balances, the
// ticket purchase ledger, and the one-time channel subscription bonus.
type UserService struct {
	Dynamo    *DynamoService
	Referrals *ReferralService
	Clock     func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// GetOrCreateUser returns the user, creating the record on first contact.
// referralCode, when present and resolvable, links the new user to its
// referrer. Reports whether the record was created by this call.
func (s *UserService) GetOrCreateUser(ctx context.Context, telegramID, username, referralCode string) (*models.User, bool, error) {
	if user, err := s.GetUser(ctx, telegramID); err == nil {
		return user, false, nil
	} else if err != ErrUserNotFound {
		return nil, false, err
	}

	user := models.User{
		TelegramID:      telegramID,
		Username:        username,
		ReferralCode:    newReferralCode(),
		ReferredBy:      []string{},
		PurchaseHistory: []models.PurchaseRecord{},
		GameHistory:     []models.GameRecord{},
		CreatedAt:       models.FormatTime(s.now()),
	}

	var referrer *models.User
	if referralCode != "" {
		found, err := s.FindUserByReferralCode(ctx, referralCode)
		if err == nil && found.TelegramID != telegramID {
			referrer = found
			user.ReferredBy = []string{referrer.TelegramID}
		}
	}

	if err := s.Dynamo.PutItemIfAbsent(ctx, models.UsersTable, user, "telegramId"); err != nil {
		if IsConditionalCheckFailed(err) {
			// Concurrent first contact won; use what it wrote.
			existing, gerr := s.GetUser(ctx, telegramID)
			return existing, false, gerr
		}
		return nil, false, err
	}

	log.Printf("👤 User %s created", telegramID)

	if referrer != nil && s.Referrals != nil {
		if err := s.Referrals.CreateReferral(ctx, referrer.TelegramID, telegramID); err != nil {
			log.Printf("⚠️ Failed to record referral %s -> %s: %v", referrer.TelegramID, telegramID, err)
		}
	}

	return &user, true, nil
}

// GetUser retrieves a user by telegram id.
func (s *UserService) GetUser(ctx context.Context, telegramID string) (*models.User, error) {
	item, err := s.Dynamo.GetItem(ctx, models.UsersTable, stringKey("telegramId", telegramID))
	if err != nil {
		if err == ErrItemNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var user models.User
	if err := attributevalue.UnmarshalMap(item, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// FindUserByReferralCode resolves a referral code to its owner.
func (s *UserService) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var users []models.User
	err := s.Dynamo.ScanWithFilter(ctx, models.UsersTable, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "referralCode") == code
	}, &users)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return &users[0], nil
}

// RecordPurchase credits purchased tickets, accumulates the TON spent on
// tonBalance, and appends the ledger entry, all in one update. No TON moves
// here: payment settlement happens on the wallet side before this is called.
func (s *UserService) RecordPurchase(ctx context.Context, telegramID string, tickets int64, amountTon float64) (*models.User, error) {
	record := models.PurchaseRecord{
		PurchaseID: uuid.NewString(),
		Tickets:    tickets,
		AmountTon:  amountTon,
		CreatedAt:  models.FormatTime(s.now()),
	}
	recordItem, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal purchase record: %w", err)
	}

	attrs, err := s.Dynamo.UpdateItemWithCondition(ctx, models.UsersTable,
		"SET purchaseHistory = list_append(purchaseHistory, :entry) ADD tickets :tickets, tonBalance :ton",
		"attribute_exists(telegramId)",
		stringKey("telegramId", telegramID),
		map[string]types.AttributeValue{
			":entry":   &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberM{Value: recordItem}}},
			":tickets": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", tickets)},
			":ton":     &types.AttributeValueMemberN{Value: strconv.FormatFloat(amountTon, 'f', -1, 64)},
		},
		nil,
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	log.Printf("💳 User %s purchased %d tickets (%.2f TON)", telegramID, tickets, amountTon)

	var user models.User
	if err := attributevalue.UnmarshalMap(attrs, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// ClaimChannelBonus flips the channelSubscribed flag and credits the bonus
// chance ticket, once. The flag flip and the credit are the same update, so
// a double claim fails the condition and credits nothing.
func (s *UserService) ClaimChannelBonus(ctx context.Context, telegramID string) (*models.User, error) {
	attrs, err := s.Dynamo.UpdateItemWithCondition(ctx, models.UsersTable,
		"SET channelSubscribed = :subscribed ADD tonotChanceTickets :bonus",
		"attribute_exists(telegramId) AND channelSubscribed = :notSubscribed",
		stringKey("telegramId", telegramID),
		map[string]types.AttributeValue{
			":subscribed":    &types.AttributeValueMemberBOOL{Value: true},
			":notSubscribed": &types.AttributeValueMemberBOOL{Value: false},
			":bonus":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", models.ChannelBonusTickets)},
		},
		nil,
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			if _, gerr := s.GetUser(ctx, telegramID); gerr != nil {
				return nil, gerr
			}
			return nil, ErrBonusAlreadyClaimed
		}
		return nil, err
	}

	log.Printf("🎁 User %s claimed the channel bonus", telegramID)

	var user models.User
	if err := attributevalue.UnmarshalMap(attrs, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// SetAvatarKey stores the S3 object key of the user's uploaded avatar.
func (s *UserService) SetAvatarKey(ctx context.Context, telegramID, key string) error {
	_, err := s.Dynamo.UpdateItemWithCondition(ctx, models.UsersTable,
		"SET avatarKey = :key",
		"attribute_exists(telegramId)",
		stringKey("telegramId", telegramID),
		map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: key},
		},
		nil,
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// newReferralCode derives a short shareable code.
func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
