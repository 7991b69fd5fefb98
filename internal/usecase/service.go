// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/guard"
	"github.com/eliteGoblin/focusd/block_policy/internal/schedule"
	"github.com/eliteGoblin/focusd/block_policy/internal/status"
	"github.com/eliteGoblin/focusd/block_policy/internal/unlock"
)

// RuleService is the boundary of the policy engine. Mutations pass
// through the edit-lock guard, status queries through the schedule
// evaluator and aggregator, unlock requests through the unlock engine.
type RuleService struct {
	rules  domain.RuleStore
	engine *unlock.Engine
	clock  domain.Clock
	logger *zap.Logger
}

// NewRuleService creates the boundary service.
func NewRuleService(rules domain.RuleStore, engine *unlock.Engine, clock domain.Clock, logger *zap.Logger) *RuleService {
	return &RuleService{
		rules:  rules,
		engine: engine,
		clock:  clock,
		logger: logger,
	}
}

// CreateRule validates the definition, assigns an id, and derives the
// edit lock from EditLockDays. Ids are never reused; the lock, once
// set, survives every later update.
func (s *RuleService) CreateRule(ctx context.Context, def domain.RuleDefinition) (*domain.BlockRule, error) {
	if def.EditLockDays < 0 {
		return nil, fmt.Errorf("%w: edit lock days must not be negative", domain.ErrInvalidRule)
	}

	now := s.clock.Now().UTC()
	rule := domain.BlockRule{
		ID:                      uuid.NewString(),
		Name:                    def.Name,
		TargetApps:              def.TargetApps,
		BlockAll:                def.BlockAll,
		Schedule:                def.Schedule,
		UnlockMethod:            def.UnlockMethod,
		Password:                def.Password,
		ActivityMinutesRequired: def.ActivityMinutesRequired,
		EditLockDays:            def.EditLockDays,
		AllowTemporaryUnlock:    def.AllowTemporaryUnlock,
		TemporaryUnlockMinutes:  def.TemporaryUnlockMinutes,
		StrictMode:              def.StrictMode,
		Active:                  true,
		CreatedAt:               now,
	}
	if def.EditLockDays > 0 {
		until := now.AddDate(0, 0, def.EditLockDays)
		rule.EditLockedUntil = &until
	}

	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if err := s.rules.Insert(ctx, rule); err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}

	s.logger.Info("rule created",
		zap.String("rule", rule.ID),
		zap.String("name", rule.Name),
		zap.Bool("edit_locked", rule.EditLockedUntil != nil))
	return &rule, nil
}

// GetRule returns a single rule by id.
func (s *RuleService) GetRule(ctx context.Context, id string) (*domain.BlockRule, error) {
	return s.rules.Get(ctx, id)
}

// ListRules returns every rule, active or not.
func (s *RuleService) ListRules(ctx context.Context) ([]domain.BlockRule, error) {
	return s.rules.List(ctx)
}

// UpdateRule applies a patch once the edit-lock guard admits the
// mutation. The patch enumerates every mutable field; nothing else on
// the rule can be touched through this path.
func (s *RuleService) UpdateRule(ctx context.Context, id string, patch domain.RulePatch) (*domain.BlockRule, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := guard.CanModify(*rule, now); err != nil {
		return nil, err
	}

	updated := applyPatch(*rule, patch)
	if err := validateRule(updated); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	s.logger.Info("rule updated", zap.String("rule", id))
	return &updated, nil
}

// DeleteRule removes a rule once the edit-lock guard admits it.
// Outstanding temporary unlocks are left behind; they reference
// nothing and age out on their own.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	if err := guard.CanDelete(*rule, now); err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	s.logger.Info("rule deleted", zap.String("rule", id))
	return nil
}

// Status computes the current blocking decision across all rules.
func (s *RuleService) Status(ctx context.Context) (domain.BlockerStatus, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return domain.BlockerStatus{}, fmt.Errorf("list rules: %w", err)
	}
	return status.Compute(rules, s.clock.Now()), nil
}

// VerifyPassword checks a password-based unlock request.
func (s *RuleService) VerifyPassword(ctx context.Context, id, candidate string) (bool, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.engine.VerifyPassword(*rule, candidate), nil
}

// VerifySportUnlock checks an activity-based unlock request against
// today's workout ledger.
func (s *RuleService) VerifySportUnlock(ctx context.Context, id string) (domain.ActivityCheck, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return domain.ActivityCheck{}, err
	}
	return s.engine.VerifyActivity(ctx, *rule, s.clock.Now())
}

// GrantTemporaryUnlock issues a time-boxed exception for a rule,
// optionally scoped to one app.
func (s *RuleService) GrantTemporaryUnlock(ctx context.Context, id, appName string) (*domain.TemporaryUnlock, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.GrantTemporaryUnlock(ctx, *rule, appName, s.clock.Now())
}

// ActiveUnlocks returns every temporary unlock still in force.
func (s *RuleService) ActiveUnlocks(ctx context.Context) ([]domain.TemporaryUnlock, error) {
	return s.engine.ListActive(ctx, s.clock.Now())
}

// applyPatch copies non-nil patch fields onto the rule.
func applyPatch(rule domain.BlockRule, patch domain.RulePatch) domain.BlockRule {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.TargetApps != nil {
		rule.TargetApps = *patch.TargetApps
	}
	if patch.BlockAll != nil {
		rule.BlockAll = *patch.BlockAll
	}
	if patch.Schedule != nil {
		rule.Schedule = *patch.Schedule
	}
	if patch.UnlockMethod != nil {
		rule.UnlockMethod = *patch.UnlockMethod
	}
	if patch.Password != nil {
		rule.Password = *patch.Password
	}
	if patch.ActivityMinutesRequired != nil {
		rule.ActivityMinutesRequired = *patch.ActivityMinutesRequired
	}
	if patch.AllowTemporaryUnlock != nil {
		rule.AllowTemporaryUnlock = *patch.AllowTemporaryUnlock
	}
	if patch.TemporaryUnlockMinutes != nil {
		rule.TemporaryUnlockMinutes = *patch.TemporaryUnlockMinutes
	}
	if patch.StrictMode != nil {
		rule.StrictMode = *patch.StrictMode
	}
	if patch.Active != nil {
		rule.Active = *patch.Active
	}
	return rule
}

// validateRule checks the cross-field invariants shared by create and
// update.
func validateRule(r domain.BlockRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidRule)
	}
	if !r.UnlockMethod.Valid() {
		return fmt.Errorf("%w: unknown unlock method %q", domain.ErrInvalidRule, r.UnlockMethod)
	}
	if r.UnlockMethod.RequiresPassword() && r.Password == "" {
		return fmt.Errorf("%w: unlock method %q requires a password", domain.ErrInvalidRule, r.UnlockMethod)
	}
	if r.ActivityMinutesRequired < 0 {
		return fmt.Errorf("%w: activity minutes must not be negative", domain.ErrInvalidRule)
	}
	if r.TemporaryUnlockMinutes < 1 {
		return fmt.Errorf("%w: temporary unlock minutes must be at least 1", domain.ErrInvalidRule)
	}
	if err := schedule.Validate(r.Schedule); err != nil {
		return err
	}
	return nil
}
