// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// UnlockMethod selects how a blocked rule may be unlocked.
type UnlockMethod string

const (
	UnlockPassword UnlockMethod = "password"
	UnlockActivity UnlockMethod = "activity"
	UnlockBoth     UnlockMethod = "both"
)

// RequiresPassword reports whether the method needs a configured password.
func (m UnlockMethod) RequiresPassword() bool {
	return m == UnlockPassword || m == UnlockBoth
}

// RequiresActivity reports whether the method needs a workout-minute quota.
func (m UnlockMethod) RequiresActivity() bool {
	return m == UnlockActivity || m == UnlockBoth
}

// Valid reports whether the method is one of the three known values.
func (m UnlockMethod) Valid() bool {
	switch m {
	case UnlockPassword, UnlockActivity, UnlockBoth:
		return true
	}
	return false
}

// WeeklySchedule is a recurring weekly time-of-day window.
// Days holds lowercase English weekday names; an empty set means every day.
// Start and End are zero-padded "HH:MM" 24-hour clock values, evaluated in UTC.
// A window whose End precedes its Start matches nothing: schedules do not
// wrap past midnight.
type WeeklySchedule struct {
	Days  []string
	Start string
	End   string
}

// BlockRule is a named policy describing which apps are blocked, when,
// and how the block may be lifted.
type BlockRule struct {
	ID         string
	Name       string
	TargetApps []string // app identifiers; ignored when BlockAll is set
	BlockAll   bool
	Schedule   WeeklySchedule

	UnlockMethod            UnlockMethod
	Password                string // plaintext per product contract; compared only inside the unlock engine
	ActivityMinutesRequired int

	// EditLockDays is the commitment period requested at creation.
	// EditLockedUntil is derived from it once and never extended or
	// shortened by updates; only a fresh create resets it.
	EditLockDays    int
	EditLockedUntil *time.Time

	AllowTemporaryUnlock   bool
	TemporaryUnlockMinutes int
	StrictMode             bool // refuses temporary unlocks even when allowed above

	Active    bool // soft-disable flag, independent of the schedule
	CreatedAt time.Time
}

// RuleDefinition is the create-time input for a BlockRule. The engine
// assigns the id, creation time, and edit-lock expiry.
type RuleDefinition struct {
	Name                    string
	TargetApps              []string
	BlockAll                bool
	Schedule                WeeklySchedule
	UnlockMethod            UnlockMethod
	Password                string
	ActivityMinutesRequired int
	EditLockDays            int
	AllowTemporaryUnlock    bool
	TemporaryUnlockMinutes  int
	StrictMode              bool
}

// RulePatch enumerates exactly the mutable fields of a BlockRule.
// A nil field is left unchanged. ID, CreatedAt, EditLockDays and
// EditLockedUntil are deliberately absent: a patch can never weaken an
// edit lock, and unknown fields cannot be expressed at all.
type RulePatch struct {
	Name                    *string
	TargetApps              *[]string
	BlockAll                *bool
	Schedule                *WeeklySchedule
	UnlockMethod            *UnlockMethod
	Password                *string
	ActivityMinutesRequired *int
	AllowTemporaryUnlock    *bool
	TemporaryUnlockMinutes  *int
	StrictMode              *bool
	Active                  *bool
}

// TemporaryUnlock is a short-lived exception suspending enforcement of
// one rule (optionally for a single app). Records are never mutated;
// they become inert once ExpiresAt passes and may be pruned later.
type TemporaryUnlock struct {
	ID        string
	RuleID    string
	AppName   string // empty unlocks the whole rule
	GrantedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the unlock is inert at the given instant.
func (u TemporaryUnlock) Expired(now time.Time) bool {
	return !u.ExpiresAt.After(now)
}

// BlockerStatus is the externally visible blocking decision.
// ActiveRules have their passwords redacted.
type BlockerStatus struct {
	IsBlocking  bool
	ActiveRules []BlockRule
}

// ActivityCheck is the outcome of an activity-based unlock verification.
type ActivityCheck struct {
	Verified        bool
	MinutesDone     int
	MinutesRequired int
}

// WorkoutSession is one logged exercise session. Date is the UTC
// calendar day ("2006-01-02") the session counts toward.
type WorkoutSession struct {
	ID              string
	Date            string
	Activity        string
	DurationMinutes int
	LoggedAt        time.Time
}

// AppPresence reports the running processes found for one target app.
type AppPresence struct {
	App  string
	PIDs []int
}
