package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel deny reasons surfaced to the boundary. These are policy
// decisions the caller can act on, not transient failures; nothing in
// the engine retries them.
var (
	// ErrRuleNotFound indicates the referenced rule id does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrCurrentlyActive indicates a mutation was attempted while the
	// rule is inside its enforcement window.
	ErrCurrentlyActive = errors.New("rule is inside its enforcement window")

	// ErrStrictMode indicates the rule refuses temporary unlocks outright.
	ErrStrictMode = errors.New("strict mode forbids temporary unlocks")

	// ErrTemporaryUnlockDisabled indicates the rule has temporary
	// unlocks switched off.
	ErrTemporaryUnlockDisabled = errors.New("temporary unlocks disabled for this rule")

	// ErrInvalidRule indicates a malformed definition or patch.
	ErrInvalidRule = errors.New("invalid rule")
)

// EditLockError denies a mutation while the rule's edit lock is in
// force. It carries the expiry so callers can render it.
type EditLockError struct {
	Until time.Time
}

func (e *EditLockError) Error() string {
	return fmt.Sprintf("rule is edit-locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// IsDeny reports whether err is a policy deny reason rather than an
// internal (store) failure.
func IsDeny(err error) bool {
	var lockErr *EditLockError
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrCurrentlyActive) ||
		errors.Is(err, ErrStrictMode) ||
		errors.Is(err, ErrTemporaryUnlockDisabled) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.As(err, &lockErr)
}
