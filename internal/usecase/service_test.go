package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/unlock"
)

// fixedClock implements domain.Clock with an adjustable instant.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// mockRuleStore implements domain.RuleStore for testing
type mockRuleStore struct {
	rules     map[string]domain.BlockRule
	insertErr error
	updateErr error
}

func newMockRuleStore() *mockRuleStore {
	return &mockRuleStore{rules: make(map[string]domain.BlockRule)}
}

func (m *mockRuleStore) Insert(_ context.Context, rule domain.BlockRule) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleStore) Get(_ context.Context, id string) (*domain.BlockRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return &rule, nil
}

func (m *mockRuleStore) List(_ context.Context) ([]domain.BlockRule, error) {
	out := make([]domain.BlockRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRuleStore) Update(_ context.Context, rule domain.BlockRule) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.rules[rule.ID]; !ok {
		return domain.ErrRuleNotFound
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleStore) Delete(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// mockUnlockStore implements domain.UnlockStore for testing
type mockUnlockStore struct {
	inserted []domain.TemporaryUnlock
}

func (m *mockUnlockStore) Insert(_ context.Context, u domain.TemporaryUnlock) error {
	m.inserted = append(m.inserted, u)
	return nil
}

func (m *mockUnlockStore) ListActive(_ context.Context, now time.Time) ([]domain.TemporaryUnlock, error) {
	var active []domain.TemporaryUnlock
	for _, u := range m.inserted {
		if !u.Expired(now) {
			active = append(active, u)
		}
	}
	return active, nil
}

func (m *mockUnlockStore) PruneExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// mockLedger implements domain.WorkoutLedger for testing
type mockLedger struct {
	minutes map[string]int
}

func (m *mockLedger) LogWorkout(_ context.Context, _ domain.WorkoutSession) error { return nil }

func (m *mockLedger) TotalMinutesForDate(_ context.Context, date string) (int, error) {
	return m.minutes[date], nil
}

// 2024-01-01 12:00 UTC is a Monday noon.
var noon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockRuleStore, clock *fixedClock) *RuleService {
	return newTestServiceWithLedger(store, clock, &mockLedger{})
}

func newTestServiceWithLedger(store *mockRuleStore, clock *fixedClock, ledger *mockLedger) *RuleService {
	engine := unlock.NewEngine(&mockUnlockStore{}, ledger, zap.NewNop())
	return NewRuleService(store, engine, clock, zap.NewNop())
}

func validDefinition() domain.RuleDefinition {
	return domain.RuleDefinition{
		Name:                   "evening social block",
		TargetApps:             []string{"com.app.social"},
		Schedule:               domain.WeeklySchedule{Days: []string{"monday"}, Start: "20:00", End: "23:00"},
		UnlockMethod:           domain.UnlockPassword,
		Password:               "hunter2",
		AllowTemporaryUnlock:   true,
		TemporaryUnlockMinutes: 5,
	}
}

func TestCreateRule(t *testing.T) {
	store := newMockRuleStore()
	svc := newTestService(store, &fixedClock{now: noon})

	rule, err := svc.CreateRule(context.Background(), validDefinition())
	require.NoError(t, err)

	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, noon, rule.CreatedAt)
	assert.True(t, rule.Active)
	assert.Nil(t, rule.EditLockedUntil)
	assert.Contains(t, store.rules, rule.ID)
}

func TestCreateRule_ComputesEditLock(t *testing.T) {
	store := newMockRuleStore()
	svc := newTestService(store, &fixedClock{now: noon})

	def := validDefinition()
	def.EditLockDays = 7

	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)
	require.NotNil(t, rule.EditLockedUntil)
	assert.Equal(t, noon.AddDate(0, 0, 7), *rule.EditLockedUntil)
}

func TestCreateRule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.RuleDefinition)
	}{
		{name: "empty name", mutate: func(d *domain.RuleDefinition) { d.Name = "  " }},
		{name: "unknown unlock method", mutate: func(d *domain.RuleDefinition) { d.UnlockMethod = "biometric" }},
		{name: "password method without password", mutate: func(d *domain.RuleDefinition) { d.Password = "" }},
		{name: "both method without password", mutate: func(d *domain.RuleDefinition) {
			d.UnlockMethod = domain.UnlockBoth
			d.Password = ""
		}},
		{name: "negative activity minutes", mutate: func(d *domain.RuleDefinition) {
			d.UnlockMethod = domain.UnlockActivity
			d.ActivityMinutesRequired = -1
		}},
		{name: "zero temporary unlock minutes", mutate: func(d *domain.RuleDefinition) { d.TemporaryUnlockMinutes = 0 }},
		{name: "negative edit lock days", mutate: func(d *domain.RuleDefinition) { d.EditLockDays = -1 }},
		{name: "bad schedule start", mutate: func(d *domain.RuleDefinition) { d.Schedule.Start = "25:00" }},
		{name: "unknown weekday", mutate: func(d *domain.RuleDefinition) { d.Schedule.Days = []string{"funday"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockRuleStore(), &fixedClock{now: noon})
			def := validDefinition()
			tt.mutate(&def)

			_, err := svc.CreateRule(context.Background(), def)
			assert.ErrorIs(t, err, domain.ErrInvalidRule)
		})
	}
}

func TestUpdateRule_AppliesPatch(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	rule, err := svc.CreateRule(context.Background(), validDefinition())
	require.NoError(t, err)

	name := "renamed"
	strict := true
	updated, err := svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{
		Name:       &name,
		StrictMode: &strict,
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.StrictMode)
	// Untouched fields survive.
	assert.Equal(t, rule.Schedule, updated.Schedule)
	assert.Equal(t, rule.Password, updated.Password)
	assert.Equal(t, rule.CreatedAt, updated.CreatedAt)
}

func TestUpdateRule_DeniedWhileEditLocked(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	def := validDefinition()
	def.EditLockDays = 1
	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	name := "renamed"
	_, err = svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{Name: &name})
	var lockErr *domain.EditLockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, noon.AddDate(0, 0, 1), lockErr.Until)

	// Same instant, deletion is denied too.
	err = svc.DeleteRule(context.Background(), rule.ID)
	assert.True(t, errors.As(err, &lockErr))

	// Once the lock passes (and outside the window), both succeed.
	clock.now = noon.AddDate(0, 0, 1).Add(time.Minute)
	_, err = svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{Name: &name})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRule(context.Background(), rule.ID))
}

func TestUpdateRule_DeniedDuringActiveWindow(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	def := validDefinition()
	def.Schedule = domain.WeeklySchedule{Days: []string{"monday"}, Start: "11:00", End: "13:00"}
	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	name := "renamed"
	_, err = svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{Name: &name})
	assert.ErrorIs(t, err, domain.ErrCurrentlyActive)

	err = svc.DeleteRule(context.Background(), rule.ID)
	assert.ErrorIs(t, err, domain.ErrCurrentlyActive)
}

func TestUpdateRule_PatchCannotWeakenEditLock(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	def := validDefinition()
	def.EditLockDays = 1
	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	// Past the lock, patch every mutable field; the lock timestamp is
	// not among them and must survive untouched.
	clock.now = noon.AddDate(0, 0, 2)
	active := false
	updated, err := svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{Active: &active})
	require.NoError(t, err)
	require.NotNil(t, updated.EditLockedUntil)
	assert.Equal(t, *rule.EditLockedUntil, *updated.EditLockedUntil)
}

func TestUpdateRule_InvalidPatchRejected(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	rule, err := svc.CreateRule(context.Background(), validDefinition())
	require.NoError(t, err)

	empty := ""
	_, err = svc.UpdateRule(context.Background(), rule.ID, domain.RulePatch{Password: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	// Store still holds the original.
	stored, err := svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored.Password)
}

func TestUpdateRule_UnknownID(t *testing.T) {
	svc := newTestService(newMockRuleStore(), &fixedClock{now: noon})

	name := "x"
	_, err := svc.UpdateRule(context.Background(), "missing", domain.RulePatch{Name: &name})
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)

	assert.ErrorIs(t, svc.DeleteRule(context.Background(), "missing"), domain.ErrRuleNotFound)
}

func TestStatus(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	def := validDefinition()
	def.Schedule = domain.WeeklySchedule{Days: []string{"monday"}, Start: "11:00", End: "13:00"}
	_, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsBlocking)
	require.Len(t, st.ActiveRules, 1)
	assert.Empty(t, st.ActiveRules[0].Password)

	// Outside the window the status clears.
	clock.now = noon.Add(3 * time.Hour)
	st, err = svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.IsBlocking)
	assert.Empty(t, st.ActiveRules)
}

func TestVerifyPassword(t *testing.T) {
	store := newMockRuleStore()
	svc := newTestService(store, &fixedClock{now: noon})

	rule, err := svc.CreateRule(context.Background(), validDefinition())
	require.NoError(t, err)

	ok, err := svc.VerifyPassword(context.Background(), rule.ID, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyPassword(context.Background(), rule.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.VerifyPassword(context.Background(), "missing", "hunter2")
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestVerifySportUnlock(t *testing.T) {
	store := newMockRuleStore()
	ledger := &mockLedger{minutes: map[string]int{"2024-01-01": 40}}
	svc := newTestServiceWithLedger(store, &fixedClock{now: noon}, ledger)

	def := validDefinition()
	def.UnlockMethod = domain.UnlockActivity
	def.Password = ""
	def.ActivityMinutesRequired = 30
	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	check, err := svc.VerifySportUnlock(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityCheck{Verified: true, MinutesDone: 40, MinutesRequired: 30}, check)
}

func TestGrantTemporaryUnlock_EndToEnd(t *testing.T) {
	store := newMockRuleStore()
	clock := &fixedClock{now: noon}
	svc := newTestService(store, clock)

	rule, err := svc.CreateRule(context.Background(), validDefinition())
	require.NoError(t, err)

	u, err := svc.GrantTemporaryUnlock(context.Background(), rule.ID, "com.app.social")
	require.NoError(t, err)
	assert.Equal(t, noon.Add(5*time.Minute), u.ExpiresAt)

	clock.now = noon.Add(4 * time.Minute)
	active, err := svc.ActiveUnlocks(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)

	clock.now = noon.Add(6 * time.Minute)
	active, err = svc.ActiveUnlocks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGrantTemporaryUnlock_StrictRule(t *testing.T) {
	store := newMockRuleStore()
	svc := newTestService(store, &fixedClock{now: noon})

	def := validDefinition()
	def.StrictMode = true
	rule, err := svc.CreateRule(context.Background(), def)
	require.NoError(t, err)

	_, err = svc.GrantTemporaryUnlock(context.Background(), rule.ID, "")
	assert.ErrorIs(t, err, domain.ErrStrictMode)
}
