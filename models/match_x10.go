package models

// PoolPlayer is one slot of an X10 pool match, in join order. Join order is
// the tie-break basis for position-dependent UI; it does not pick winners.
type PoolPlayer struct {
	TelegramID string `dynamodbav:"telegramId" json:"telegramId"`
	Username   string `dynamodbav:"username" json:"username"`
	CreatedAt  string `dynamodbav:"createdAt" json:"createdAt"`
	Chance     int64  `dynamodbav:"chance" json:"chance"` // ticket cost paid to enter
}

// PoolWinner is one of the exactly three winners of a resolved pool match.
type PoolWinner struct {
	TelegramID string `dynamodbav:"telegramId" json:"telegramId"`
	Username   string `dynamodbav:"username" json:"username"`
	Prize      int64  `dynamodbav:"prize" json:"prize"`
	Position   int    `dynamodbav:"position" json:"position"` // 1..3, pairwise distinct
}

// MatchX10 is a 10-player pooled match. It moves to playing only when the
// tenth player joins, and winners are applied by an external resolution step.
type MatchX10 struct {
	MatchID      string       `dynamodbav:"matchId" json:"matchId"`
	Players      []PoolPlayer `dynamodbav:"players" json:"players"`
	Status       string       `dynamodbav:"status" json:"status"`
	Winners      []PoolWinner `dynamodbav:"winners,omitempty" json:"winners,omitempty"`
	CreatedAt    string       `dynamodbav:"createdAt" json:"createdAt"`
	StartedAt    string       `dynamodbav:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt  string       `dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	CancelReason string       `dynamodbav:"cancelReason,omitempty" json:"cancelReason,omitempty"`
}

// PlayerIndex returns the index of telegramID in the players list, or -1.
func (m *MatchX10) PlayerIndex(telegramID string) int {
	for i, p := range m.Players {
		if p.TelegramID == telegramID {
			return i
		}
	}
	return -1
}

// MatchesX10Table is the DynamoDB table name for X10 pool matches
const MatchesX10Table = "MatchesX10"
