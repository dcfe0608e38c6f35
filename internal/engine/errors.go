package engine

import "errors"

// Kind classifies an error for the platform layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindCapacity
	KindPersistence
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindPersistence:
		return "persistence"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotEligible      = newError(KindValidation, "not_eligible", "voter is not eligible for this vote")
	ErrUnknownCandidate = newError(KindValidation, "unknown_candidate", "unknown candidate")
	ErrAlreadyVoted     = newError(KindValidation, "already_voted", "voter has already voted")
	ErrVoteClosed       = newError(KindValidation, "vote_closed", "vote is closed")
	ErrUnknownSession   = newError(KindValidation, "unknown_session", "no such vote session")
	ErrWrongTurn        = newError(KindValidation, "wrong_turn", "invalid turn")
	ErrIndexOutOfRange  = newError(KindValidation, "index_out_of_range", "pick index out of range")
	ErrAlreadyQueued    = newError(KindValidation, "already_queued", "participant is already queued")
	ErrNotQueued        = newError(KindValidation, "not_queued", "participant is not in the queue")
	ErrWrongPhase       = newError(KindValidation, "wrong_phase", "operation not allowed in the current phase")
	ErrNotCaptain       = newError(KindValidation, "not_captain", "only captains can do that")
	ErrNotResponder     = newError(KindValidation, "not_responder", "only the other captain can answer a swap request")
	ErrSwapUsed         = newError(KindValidation, "swap_used", "captain swap already used this match")
	ErrSwapPending      = newError(KindValidation, "swap_pending", "a swap request is already pending")
	ErrNoSwapPending    = newError(KindValidation, "no_swap_pending", "no swap request is pending")
	ErrNoActiveMatch    = newError(KindValidation, "no_active_match", "no active match")
	ErrAlreadyReported  = newError(KindValidation, "already_reported", "match already reported")
	ErrCommitPending    = newError(KindValidation, "commit_pending", "a match write is in progress")
	ErrNotAuthorized    = newError(KindValidation, "not_authorized", "admin permission required")
	ErrInvalidQueue     = newError(KindValidation, "invalid_queue", "invalid queue number")

	ErrQueueFull     = newError(KindCapacity, "queue_full", "queue is full")
	ErrDraftComplete = newError(KindCapacity, "draft_exhausted", "draft pool exhausted")

	ErrPersistence = newError(KindPersistence, "persistence", "persistence failure")

	ErrInvalidTeam      = newError(KindInvariant, "invalid_team", "team must be 1 or 2")
	ErrAlreadyResolved  = newError(KindInvariant, "already_resolved", "vote session already resolved")
	ErrNotEnoughVoters  = newError(KindInvariant, "not_enough_candidates", "not enough candidates to resolve vote")
	ErrWrongSessionKind = newError(KindInvariant, "wrong_session_kind", "vote session kind mismatch")
)

// KindOf reports the class of err, looking through wrapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable machine code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
