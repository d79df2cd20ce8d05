package models

// User holds ticket balances, the referral graph edges pointing at this user,
// and the purchase/game ledgers. Balance fields are only ever mutated with
// relative ADD increments so concurrent writers stay commutative.
type User struct {
	TelegramID         string           `dynamodbav:"telegramId" json:"telegramId"`
	Username           string           `dynamodbav:"username" json:"username"`
	Tickets            int64            `dynamodbav:"tickets" json:"tickets"`
	TonotChanceTickets int64            `dynamodbav:"tonotChanceTickets" json:"tonotChanceTickets"`
	Balance            int64            `dynamodbav:"balance" json:"balance"`
	TonBalance         float64          `dynamodbav:"tonBalance" json:"tonBalance"`
	ReferralCode       string           `dynamodbav:"referralCode" json:"referralCode"`
	ReferredBy         []string         `dynamodbav:"referredBy" json:"referredBy"`
	AvatarKey          string           `dynamodbav:"avatarKey,omitempty" json:"avatarKey,omitempty"`
	ChannelSubscribed  bool             `dynamodbav:"channelSubscribed" json:"channelSubscribed"`
	PurchaseHistory    []PurchaseRecord `dynamodbav:"purchaseHistory" json:"purchaseHistory"`
	GameHistory        []GameRecord     `dynamodbav:"gameHistory" json:"gameHistory"`
	CreatedAt          string           `dynamodbav:"createdAt" json:"createdAt"`
}

// PurchaseRecord is one entry of the ticket purchase ledger.
type PurchaseRecord struct {
	PurchaseID string  `dynamodbav:"purchaseId" json:"purchaseId"`
	Tickets    int64   `dynamodbav:"tickets" json:"tickets"`
	AmountTon  float64 `dynamodbav:"amountTon" json:"amountTon"`
	CreatedAt  string  `dynamodbav:"createdAt" json:"createdAt"`
}

// GameRecord is one entry of the per-user game ledger, appended when a match
// the user took part in is resolved.
type GameRecord struct {
	MatchID   string `dynamodbav:"matchId" json:"matchId"`
	Mode      string `dynamodbav:"mode" json:"mode"` // "1v1" or "x10"
	Won       bool   `dynamodbav:"won" json:"won"`
	Delta     int64  `dynamodbav:"delta" json:"delta"` // signed balance change in the mode's currency
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

// UsersTable is the DynamoDB table name for user records
const UsersTable = "Users"
