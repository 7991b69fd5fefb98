// Package status computes the externally visible blocking decision.
package status

import (
	"time"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/schedule"
)

// Compute filters the rule set to those enabled and inside their
// window at now, with passwords redacted. IsBlocking is simply "any
// rule is active". Temporary unlocks are not consulted: "blocking in
// principle" and "this app is currently exempted" are different
// questions, and the per-app answer comes from the unlock engine's
// active list. Pure function of its inputs.
func Compute(rules []domain.BlockRule, now time.Time) domain.BlockerStatus {
	active := make([]domain.BlockRule, 0, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if !schedule.IsActive(r.Schedule, now) {
			continue
		}
		active = append(active, redact(r))
	}
	return domain.BlockerStatus{
		IsBlocking:  len(active) > 0,
		ActiveRules: active,
	}
}

// redact strips the unlock secret before a rule leaves the engine.
func redact(r domain.BlockRule) domain.BlockRule {
	r.Password = ""
	return r
}
