//go:build integration

package integration

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/infra"
	"github.com/eliteGoblin/focusd/block_policy/internal/unlock"
	"github.com/eliteGoblin/focusd/block_policy/internal/usecase"
)

// testClock lets specs move time explicitly.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// mondayNoon 2024-01-01 12:00 UTC.
var mondayNoon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

var _ = Describe("Policy Engine", func() {
	var (
		ctx     context.Context
		store   *infra.EncryptedStore
		clock   *testClock
		service *usecase.RuleService
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = &testClock{now: mondayNoon}

		dataDir := GinkgoT().TempDir()
		key, err := infra.NewFileKeyProvider(dataDir).EnsureKey()
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())

		engine := unlock.NewEngine(store.Unlocks(), store, zap.NewNop())
		service = usecase.NewRuleService(store, engine, clock, zap.NewNop())
	})

	AfterEach(func() {
		store.Close()
	})

	evening := func() domain.RuleDefinition {
		return domain.RuleDefinition{
			Name:                   "evening social block",
			TargetApps:             []string{"com.app.social"},
			Schedule:               domain.WeeklySchedule{Days: []string{"monday"}, Start: "22:00", End: "23:30"},
			UnlockMethod:           domain.UnlockPassword,
			Password:               "hunter2",
			AllowTemporaryUnlock:   true,
			TemporaryUnlockMinutes: 5,
		}
	}

	Describe("blocking status", func() {
		It("turns on inside the window and off past midnight", func() {
			_, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			// Monday 22:15 - blocking, password redacted.
			clock.now = time.Date(2024, 1, 1, 22, 15, 0, 0, time.UTC)
			st, err := service.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.IsBlocking).To(BeTrue())
			Expect(st.ActiveRules).To(HaveLen(1))
			Expect(st.ActiveRules[0].Password).To(BeEmpty())

			// Tuesday 00:15 - the window ended at midnight, no wrap.
			clock.now = time.Date(2024, 1, 2, 0, 15, 0, 0, time.UTC)
			st, err = service.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.IsBlocking).To(BeFalse())
		})

		It("ignores soft-disabled rules", func() {
			rule, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			disabled := false
			_, err = service.UpdateRule(ctx, rule.ID, domain.RulePatch{Active: &disabled})
			Expect(err).NotTo(HaveOccurred())

			clock.now = time.Date(2024, 1, 1, 22, 15, 0, 0, time.UTC)
			st, err := service.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.IsBlocking).To(BeFalse())
		})
	})

	Describe("edit locking", func() {
		It("denies update and delete until the lock passes", func() {
			def := evening()
			def.EditLockDays = 1
			rule, err := service.CreateRule(ctx, def)
			Expect(err).NotTo(HaveOccurred())

			name := "renamed"
			_, err = service.UpdateRule(ctx, rule.ID, domain.RulePatch{Name: &name})
			var lockErr *domain.EditLockError
			Expect(errors.As(err, &lockErr)).To(BeTrue())
			Expect(lockErr.Until).To(Equal(mondayNoon.AddDate(0, 0, 1)))

			Expect(errors.As(service.DeleteRule(ctx, rule.ID), &lockErr)).To(BeTrue())

			// Tuesday 12:01, lock expired, window inactive.
			clock.now = mondayNoon.AddDate(0, 0, 1).Add(time.Minute)
			_, err = service.UpdateRule(ctx, rule.ID, domain.RulePatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(service.DeleteRule(ctx, rule.ID)).To(Succeed())
		})

		It("denies mutation during the enforcement window even without a lock", func() {
			rule, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			clock.now = time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
			name := "renamed"
			_, err = service.UpdateRule(ctx, rule.ID, domain.RulePatch{Name: &name})
			Expect(err).To(MatchError(domain.ErrCurrentlyActive))
		})
	})

	Describe("temporary unlocks", func() {
		It("grants a window that expires lazily", func() {
			rule, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			u, err := service.GrantTemporaryUnlock(ctx, rule.ID, "com.app.social")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ExpiresAt).To(Equal(mondayNoon.Add(5 * time.Minute)))

			clock.now = mondayNoon.Add(4 * time.Minute)
			active, err := service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			Expect(active[0].AppName).To(Equal("com.app.social"))

			clock.now = mondayNoon.Add(6 * time.Minute)
			active, err = service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())
		})

		It("refuses strict-mode rules regardless of the allow flag", func() {
			def := evening()
			def.StrictMode = true
			rule, err := service.CreateRule(ctx, def)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GrantTemporaryUnlock(ctx, rule.ID, "")
			Expect(err).To(MatchError(domain.ErrStrictMode))

			active, err := service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())
		})

		It("survives rule deletion as an orphan that ages out", func() {
			rule, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GrantTemporaryUnlock(ctx, rule.ID, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.DeleteRule(ctx, rule.ID)).To(Succeed())

			active, err := service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))

			clock.now = mondayNoon.Add(10 * time.Minute)
			active, err = service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())
		})
	})

	Describe("activity unlocks", func() {
		It("sums the day's workouts from the ledger", func() {
			def := evening()
			def.UnlockMethod = domain.UnlockActivity
			def.Password = ""
			def.ActivityMinutesRequired = 30
			rule, err := service.CreateRule(ctx, def)
			Expect(err).NotTo(HaveOccurred())

			check, err := service.VerifySportUnlock(ctx, rule.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(check.Verified).To(BeFalse())
			Expect(check.MinutesDone).To(BeZero())

			for i, mins := range []int{20, 15} {
				Expect(store.LogWorkout(ctx, domain.WorkoutSession{
					ID:              string(rune('a' + i)),
					Date:            "2024-01-01",
					Activity:        "run",
					DurationMinutes: mins,
					LoggedAt:        mondayNoon,
				})).To(Succeed())
			}

			check, err = service.VerifySportUnlock(ctx, rule.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(check).To(Equal(domain.ActivityCheck{Verified: true, MinutesDone: 35, MinutesRequired: 30}))
		})
	})

	Describe("compaction", func() {
		It("prunes only inert records and changes no decision", func() {
			rule, err := service.CreateRule(ctx, evening())
			Expect(err).NotTo(HaveOccurred())

			first, err := service.GrantTemporaryUnlock(ctx, rule.ID, "")
			Expect(err).NotTo(HaveOccurred())

			clock.now = mondayNoon.Add(10 * time.Minute)
			second, err := service.GrantTemporaryUnlock(ctx, rule.ID, "")
			Expect(err).NotTo(HaveOccurred())

			pruned, err := store.PruneExpiredUnlocks(ctx, clock.now)
			Expect(err).NotTo(HaveOccurred())
			Expect(pruned).To(BeEquivalentTo(1))

			active, err := service.ActiveUnlocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			Expect(active[0].ID).To(Equal(second.ID))
			Expect(active[0].ID).NotTo(Equal(first.ID))
		})
	})
})
