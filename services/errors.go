package services

import "errors"

// Domain errors surfaced to controllers. Multi-record mutations are
// all-or-nothing: when a transaction aborts none of these conditions has
// changed any state, and ErrTransactionConflict means the caller may simply
// resubmit (no retry happens inside the services).
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrMatchNotFound = errors.New("match not found")

	ErrAlreadyWaiting = errors.New("player already waiting in queue")
	ErrAlreadyInMatch = errors.New("player already in an active match")
	ErrAlreadyInPool  = errors.New("player already joined a pool match")

	ErrInsufficientTickets = errors.New("insufficient tickets for stake")
	ErrInsufficientChance  = errors.New("insufficient chance tickets")

	ErrMatchNotActive   = errors.New("match is not active")
	ErrWinnerNotInMatch = errors.New("winner is not a match participant")
	ErrInvalidWinnerSet = errors.New("invalid winner set")
	ErrPoolNotPlaying   = errors.New("pool match is not in playing state")

	ErrRefundNotEligible = errors.New("refund not eligible yet")
	ErrNothingToCancel   = errors.New("nothing to cancel")

	ErrBonusAlreadyClaimed = errors.New("channel bonus already claimed")

	ErrTransactionConflict = errors.New("transaction aborted by concurrent write")
)
