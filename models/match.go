package models

// Match is a 1v1 coin-flip match record. Matches are never hard-deleted:
// the sweep and player cancellation only flip status to canceled.
// Invariants enforced at write time: Player1ID != Player2ID, CompletedAt is
// set iff status is completed, CanceledAt iff status is canceled.
type Match struct {
	MatchID       string `dynamodbav:"matchId" json:"matchId"`
	Player1ID     string `dynamodbav:"player1Id" json:"player1Id"`
	Player1Name   string `dynamodbav:"player1Name" json:"player1Name"`
	Player2ID     string `dynamodbav:"player2Id" json:"player2Id"`
	Player2Name   string `dynamodbav:"player2Name" json:"player2Name"`
	TicketsAmount int64  `dynamodbav:"ticketsAmount" json:"ticketsAmount"`
	Status        string `dynamodbav:"status" json:"status"`
	WinnerID      string `dynamodbav:"winnerId,omitempty" json:"winnerId,omitempty"`
	CreatedAt     string `dynamodbav:"createdAt" json:"createdAt"`
	CompletedAt   string `dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	CanceledAt    string `dynamodbav:"canceledAt,omitempty" json:"canceledAt,omitempty"`
	CancelReason  string `dynamodbav:"cancelReason,omitempty" json:"cancelReason,omitempty"`
}

// IsActive reports whether the match still holds both players' stakes.
func (m *Match) IsActive() bool {
	return m.Status == MatchStatusWaiting || m.Status == MatchStatusMatched
}

// HasPlayer reports whether telegramID is one of the two participants.
func (m *Match) HasPlayer(telegramID string) bool {
	return m.Player1ID == telegramID || m.Player2ID == telegramID
}

// MatchesTable is the DynamoDB table name for 1v1 matches
const MatchesTable = "Matches"
