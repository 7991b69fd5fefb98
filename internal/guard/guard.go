// Package guard gates rule mutations behind edit-locking.
//
// Two checks, in order: a live edit lock denies first, then an active
// enforcement window. The ordering surfaces the longer-lived reason.
// Both checks run fresh on every attempt; nothing is cached. The
// checks are advisory against a single caller - the system is
// single-user, single-writer, so no distributed locking exists.
package guard

import (
	"time"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/schedule"
)

// CanModify reports whether the rule may be updated at the given
// instant. Returns nil when allowed, an EditLockError or
// ErrCurrentlyActive when denied.
func CanModify(rule domain.BlockRule, now time.Time) error {
	if rule.EditLockedUntil != nil && now.Before(*rule.EditLockedUntil) {
		return &domain.EditLockError{Until: *rule.EditLockedUntil}
	}
	if schedule.IsActive(rule.Schedule, now) {
		return domain.ErrCurrentlyActive
	}
	return nil
}

// CanDelete applies the same checks as CanModify: a rule that cannot
// be edited cannot be removed to circumvent it either.
func CanDelete(rule domain.BlockRule, now time.Time) error {
	return CanModify(rule, now)
}
