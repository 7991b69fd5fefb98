// Package unlock issues and verifies block-rule unlocks.
package unlock

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

// Engine implements the three unlock paths: password, logged activity,
// and time-boxed temporary unlocks. It owns the active temporary-unlock
// set, backed by the unlock store with lazy expiry.
type Engine struct {
	unlocks domain.UnlockStore
	ledger  domain.WorkoutLedger
	logger  *zap.Logger
}

// NewEngine creates an unlock engine.
func NewEngine(unlocks domain.UnlockStore, ledger domain.WorkoutLedger, logger *zap.Logger) *Engine {
	return &Engine{
		unlocks: unlocks,
		ledger:  ledger,
		logger:  logger,
	}
}

// VerifyPassword checks a candidate against the rule's configured
// password. A rule without a password fails closed. The comparison is
// the only place the secret is read; a hashing upgrade lands here
// without moving the component boundary.
func (e *Engine) VerifyPassword(rule domain.BlockRule, candidate string) bool {
	if rule.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rule.Password), []byte(candidate)) == 1
}

// VerifyActivity sums the workout minutes logged for now's UTC day and
// compares them against the rule's requirement. A day with no workouts
// is a zero total, never an error.
func (e *Engine) VerifyActivity(ctx context.Context, rule domain.BlockRule, now time.Time) (domain.ActivityCheck, error) {
	date := now.UTC().Format("2006-01-02")
	done, err := e.ledger.TotalMinutesForDate(ctx, date)
	if err != nil {
		return domain.ActivityCheck{}, fmt.Errorf("query workout ledger: %w", err)
	}
	return domain.ActivityCheck{
		Verified:        done >= rule.ActivityMinutesRequired,
		MinutesDone:     done,
		MinutesRequired: rule.ActivityMinutesRequired,
	}, nil
}

// GrantTemporaryUnlock creates a fresh unlock window for the rule and
// optionally a single app. Strict mode refuses regardless of the allow
// flag. Every grant is an independent window: an existing unexpired
// unlock is neither extended nor merged, and there is no cap on
// outstanding unlocks per rule.
func (e *Engine) GrantTemporaryUnlock(ctx context.Context, rule domain.BlockRule, appName string, now time.Time) (*domain.TemporaryUnlock, error) {
	if rule.StrictMode {
		return nil, domain.ErrStrictMode
	}
	if !rule.AllowTemporaryUnlock {
		return nil, domain.ErrTemporaryUnlockDisabled
	}

	now = now.UTC()
	u := domain.TemporaryUnlock{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		AppName:   appName,
		GrantedAt: now,
		ExpiresAt: now.Add(time.Duration(rule.TemporaryUnlockMinutes) * time.Minute),
	}
	if err := e.unlocks.Insert(ctx, u); err != nil {
		return nil, fmt.Errorf("persist temporary unlock: %w", err)
	}

	e.logger.Info("temporary unlock granted",
		zap.String("rule", rule.ID),
		zap.String("app", appName),
		zap.Time("expires_at", u.ExpiresAt))
	return &u, nil
}

// ListActive returns unlocks that have not expired at the given
// instant. Expiry is evaluated lazily here; nothing sweeps the store.
// Read-only snapshot, safe for concurrent callers.
func (e *Engine) ListActive(ctx context.Context, now time.Time) ([]domain.TemporaryUnlock, error) {
	active, err := e.unlocks.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active unlocks: %w", err)
	}
	return active, nil
}
