package models

// Referral links a referrer to an invited player, keyed by the invitee so a
// player can only ever be referred once. The record becomes valid only when
// both qualifying plays happened strictly after CreatedAt; the validity flip
// credits the referrer's bonus exactly once (BonusCredited guards it).
type Referral struct {
	ReferralID     string `dynamodbav:"referralId" json:"referralId"` // invitee telegramId
	RefererID      string `dynamodbav:"refererId" json:"refererId"`
	HasPlayedRoomA bool   `dynamodbav:"hasPlayedRoomA" json:"hasPlayedRoomA"` // 1v1
	HasPlayedRoomB bool   `dynamodbav:"hasPlayedRoomB" json:"hasPlayedRoomB"` // x10
	RoomAPlayedAt  string `dynamodbav:"roomAPlayedAt,omitempty" json:"roomAPlayedAt,omitempty"`
	RoomBPlayedAt  string `dynamodbav:"roomBPlayedAt,omitempty" json:"roomBPlayedAt,omitempty"`
	IsValid        bool   `dynamodbav:"isValid" json:"isValid"`
	BonusCredited  bool   `dynamodbav:"bonusCredited" json:"bonusCredited"`
	CreatedAt      string `dynamodbav:"createdAt" json:"createdAt"`
}

// ReferralsTable is the DynamoDB table name for referral records
const ReferralsTable = "Referrals"
