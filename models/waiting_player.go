package models

// WaitingPlayer is a 1v1 queue entry. Created on a join request when no
// partner is available, deleted on pairing, explicit cancel, or the sweep.
// No stake is debited while waiting, so expiry never refunds anything.
type WaitingPlayer struct {
	TelegramID    string `dynamodbav:"telegramId" json:"telegramId"`
	Username      string `dynamodbav:"username" json:"username"`
	TicketsAmount int64  `dynamodbav:"ticketsAmount" json:"ticketsAmount"`
	CreatedAt     string `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt     string `dynamodbav:"expiresAt" json:"expiresAt"`
}

// WaitingPlayerX10 tracks a member of a not-yet-full X10 pool. The entry
// ticket is debited at join time, which is why refund-cancel exists for it.
type WaitingPlayerX10 struct {
	TelegramID string `dynamodbav:"telegramId" json:"telegramId"`
	Username   string `dynamodbav:"username" json:"username"`
	MatchID    string `dynamodbav:"matchId" json:"matchId"`
	JoinedAt   string `dynamodbav:"joinedAt" json:"joinedAt"`
}

// WaitingPlayersTable is the DynamoDB table name for the 1v1 queue
const WaitingPlayersTable = "WaitingPlayers"

// WaitingPlayersX10Table is the DynamoDB table name for the X10 queue
const WaitingPlayersX10Table = "WaitingPlayersX10"
