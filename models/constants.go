package models

import "time"

// ✅ 1v1 Match Statuses
const (
	MatchStatusWaiting   = "waiting"
	MatchStatusMatched   = "matched"
	MatchStatusCompleted = "completed"
	MatchStatusCanceled  = "canceled"
)

// ✅ X10 Pool Match Statuses
const (
	PoolStatusWaiting   = "waiting"
	PoolStatusPlaying   = "playing"
	PoolStatusCompleted = "completed"
	PoolStatusCanceled  = "canceled"
)

// ✅ Cancel Reasons
const (
	CancelReasonPlayer  = "player_canceled"
	CancelReasonTimeout = "timeout"
	CancelReasonRefund  = "refund"
)

// Staleness thresholds applied by the sweep and the queue TTL.
const (
	MatchStaleAfter    = 2 * time.Minute  // 1v1 matches stuck in waiting/matched
	QueueEntryTTL      = 10 * time.Minute // 1v1 queue entries
	X10RefundEligible  = 1 * time.Hour    // X10 entry age before refund-cancel is allowed
	X10PoolStaleAfter  = 24 * time.Hour   // X10 pools stuck in waiting
	X10OrphanEntryTTL  = 24 * time.Hour   // X10 queue entries whose pool is gone
)

// X10 pool sizing and prize split. The split is fixed per position and does
// not depend on how many players actually joined before resolution.
const (
	PoolSize        = 10
	PoolEntryCost   = 1
	PoolWinnerCount = 3

	PrizeFirst  = 450
	PrizeSecond = 270
	PrizeThird  = 180
)

// PrizeByPosition maps a winner position (1..3) to its fixed prize amount.
var PrizeByPosition = map[int]int64{
	1: PrizeFirst,
	2: PrizeSecond,
	3: PrizeThird,
}

// Referral bonus credited to the referrer once both qualifying plays happened.
const ReferralBonusTickets = 1

// Channel subscription bonus (one-time claim).
const ChannelBonusTickets = 1
