package domain

import (
	"context"
	"time"
)

// Clock is the single timestamp source for all policy evaluation.
// Implementations return UTC so every comparison shares one frame;
// tests inject fixed instants.
type Clock interface {
	Now() time.Time
}

// RuleStore persists BlockRules. It has no policy knowledge: edit-lock
// and schedule checks happen before any call lands here. The store
// holds rules for exactly one user; there is no owner column.
type RuleStore interface {
	// Insert persists a new rule. Ids are assigned by the caller and
	// never reused.
	Insert(ctx context.Context, rule BlockRule) error

	// Get returns the rule or ErrRuleNotFound.
	Get(ctx context.Context, id string) (*BlockRule, error)

	// List returns all rules, ordered by creation time.
	List(ctx context.Context) ([]BlockRule, error)

	// Update overwrites the stored rule in a single statement.
	Update(ctx context.Context, rule BlockRule) error

	// Delete removes the rule or returns ErrRuleNotFound.
	Delete(ctx context.Context, id string) error
}

// UnlockStore persists temporary unlocks. Expiry is lazy: ListActive
// filters on the expiry column and nothing sweeps the table on a
// schedule. An unlock whose rule has since been deleted is harmless
// and simply ages out.
type UnlockStore interface {
	// Insert persists a freshly granted unlock.
	Insert(ctx context.Context, unlock TemporaryUnlock) error

	// ListActive returns unlocks with ExpiresAt strictly after now,
	// oldest grant first.
	ListActive(ctx context.Context, now time.Time) ([]TemporaryUnlock, error)

	// PruneExpired deletes inert records. Storage hygiene only; no
	// correctness depends on it running.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// WorkoutLedger records exercise sessions and reports daily totals for
// activity-based unlocks. Dates are UTC calendar days ("2006-01-02").
type WorkoutLedger interface {
	// LogWorkout records one session.
	LogWorkout(ctx context.Context, session WorkoutSession) error

	// TotalMinutesForDate sums the duration of every session logged
	// for the date. A day with no sessions totals zero, not an error.
	TotalMinutesForDate(ctx context.Context, date string) (int, error)
}

// ProcessProbe reports running processes matching an app identifier.
// Used to decorate status output; never part of the blocking decision.
type ProcessProbe interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)
}
