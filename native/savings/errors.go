package savings

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can react without matching on
// reason strings.
type Kind string

const (
	// KindValidation covers malformed construction parameters and arguments.
	KindValidation Kind = "validation"
	// KindState covers operations invoked outside their segment window or
	// lifecycle state.
	KindState Kind = "state"
	// KindAuthorization covers owner-only actions and whitelist rejections.
	KindAuthorization Kind = "authorization"
	// KindDuplicate covers repeated one-shot actions.
	KindDuplicate Kind = "duplicate"
	// KindExternalCall covers yield source failures.
	KindExternalCall Kind = "external_call"
)

// Error is the error type returned by every engine operation. Two errors are
// considered equal by errors.Is when their kind and reason match.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("savings: %s: %v", e.Reason, e.Err)
	}
	return "savings: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// IsKind reports whether err carries the provided kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind carried by err, or the empty kind.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Err: cause}
}

func invalidParam(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: "invalid parameters", Err: fmt.Errorf(format, args...)}
}

var (
	ErrInvalidParams  = newError(KindValidation, "invalid parameters")
	ErrInvalidAmount  = newError(KindValidation, "invalid amount")
	ErrInvalidAddress = newError(KindValidation, "invalid address")

	ErrNotInitialized      = newError(KindState, "game not initialized")
	ErrPaused              = newError(KindState, "game paused")
	ErrNotPaused           = newError(KindState, "game not paused")
	ErrGameStarted         = newError(KindState, "game already started")
	ErrMaxPlayers          = newError(KindState, "maximum number of players reached")
	ErrNotActive           = newError(KindState, "player not active")
	ErrDepositNotAllowed   = newError(KindState, "deposit not allowed in current segment")
	ErrMissedSegment       = newError(KindState, "previous segment was not paid")
	ErrGameCompleted       = newError(KindState, "game already completed")
	ErrGameNotCompleted    = newError(KindState, "game not completed")
	ErrNotRedeemed         = newError(KindState, "funds not redeemed from external pool")
	ErrInsufficientBalance = newError(KindState, "insufficient balance")
	ErrWhitelistDisabled   = newError(KindState, "whitelist not enabled")
	ErrReentrantCall       = newError(KindState, "reentrant call")

	ErrNotOwner      = newError(KindAuthorization, "caller is not the owner")
	ErrWhitelistOnly = newError(KindAuthorization, "whitelist mode active, use the whitelisted join")
	ErrInvalidProof  = newError(KindAuthorization, "invalid proof")

	ErrAlreadyJoined         = newError(KindDuplicate, "player already joined")
	ErrSegmentAlreadyPaid    = newError(KindDuplicate, "segment already paid")
	ErrAlreadyWithdrawn      = newError(KindDuplicate, "player already withdrawn")
	ErrAlreadyRedeemed       = newError(KindDuplicate, "funds already redeemed")
	ErrAdminAlreadyWithdrawn = newError(KindDuplicate, "admin fee already withdrawn")
	ErrIndexClaimed          = newError(KindDuplicate, "whitelist index already claimed")

	ErrStrategyDeposit  = newError(KindExternalCall, "strategy deposit failed")
	ErrStrategyWithdraw = newError(KindExternalCall, "strategy withdraw failed")
	ErrStrategyQuery    = newError(KindExternalCall, "strategy query failed")
	ErrStrategyRewards  = newError(KindExternalCall, "strategy reward claim failed")
)
