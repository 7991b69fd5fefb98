// Package main is the CLI entry point for blockctl.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/block_policy/internal/config"
	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
	"github.com/eliteGoblin/focusd/block_policy/internal/infra"
	"github.com/eliteGoblin/focusd/block_policy/internal/unlock"
	"github.com/eliteGoblin/focusd/block_policy/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blockctl",
	Short: "App-blocking policy engine - rules, schedules, unlocks",
	Long: `blockctl manages app-blocking rules for a single user: which apps
are blocked, on which weekdays and hours, and how a block may be
lifted (password, earned workout minutes, or a short temporary
unlock). Rules can be edit-locked for a commitment period; while the
lock holds, or while a rule is inside its enforcement window, it can
neither be changed nor deleted.`,
	Version: Version,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which rules are blocking right now",
	RunE:  runStatus,
}

var unlocksCmd = &cobra.Command{
	Use:   "unlocks",
	Short: "List temporary unlocks still in force",
	RunE:  runUnlocks,
}

var workoutCmd = &cobra.Command{
	Use:   "workout",
	Short: "Manage the workout ledger",
}

var workoutLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Log an exercise session (counts toward activity unlocks)",
	RunE:  runWorkoutLog,
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Prune expired temporary unlocks from storage",
	Long: `Deletes temporary-unlock records that have already expired.
Purely storage hygiene: expiry is checked at query time, so skipping
compaction never changes any blocking decision.`,
	RunE: runCompact,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("blockctl %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

var (
	statusProbe    bool
	workoutMinutes int
	workoutKind    string
	workoutDate    string
)

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Also report which target apps have running processes")
	workoutLogCmd.Flags().IntVar(&workoutMinutes, "minutes", 0, "Session duration in minutes")
	workoutLogCmd.Flags().StringVar(&workoutKind, "activity", "", "Activity label (run, yoga, ...)")
	workoutLogCmd.Flags().StringVar(&workoutDate, "date", "", "UTC day YYYY-MM-DD (default: today)")
	_ = workoutLogCmd.MarkFlagRequired("minutes")

	workoutCmd.AddCommand(workoutLogCmd)

	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(unlocksCmd)
	rootCmd.AddCommand(workoutCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles everything a command needs against one open store.
type app struct {
	service *usecase.RuleService
	store   *infra.EncryptedStore
	logger  *zap.Logger
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// openApp loads config, opens the encrypted store, and wires the
// engine. Every command goes through here so they all share one
// timestamp source and one database.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	key, err := infra.NewFileKeyProvider(cfg.DataDir).EnsureKey()
	if err != nil {
		return nil, fmt.Errorf("load database key: %w", err)
	}
	store, err := infra.NewEncryptedStore(cfg.DataDir, key)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine := unlock.NewEngine(store.Unlocks(), store, logger)
	service := usecase.NewRuleService(store, engine, infra.SystemClock{}, logger)

	return &app{service: service, store: store, logger: logger}, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	// CLI runs are short; keep structured logs out of the way unless
	// something is actually wrong.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	st, err := a.service.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Blocker Status ===")
	if !st.IsBlocking {
		fmt.Println("Status: NOT BLOCKING")
	} else {
		fmt.Printf("Status: BLOCKING (%d active rule(s))\n", len(st.ActiveRules))
	}

	var probe domain.ProcessProbe
	if statusProbe {
		probe = infra.NewProcessProbe()
	}

	for _, r := range st.ActiveRules {
		fmt.Printf("\n  %s  [%s]\n", r.Name, r.ID)
		if r.BlockAll {
			fmt.Println("    Targets: all apps")
		} else {
			fmt.Printf("    Targets: %v\n", r.TargetApps)
		}
		fmt.Printf("    Window:  %s-%s %v\n", r.Schedule.Start, r.Schedule.End, scheduleDays(r.Schedule))

		if probe != nil {
			for _, p := range infra.PresenceFor(probe, r) {
				fmt.Printf("    Running: %s (pids %v)\n", p.App, p.PIDs)
			}
		}
	}

	active, err := a.service.ActiveUnlocks(ctx)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		fmt.Printf("\nTemporary unlocks in force: %d (see 'blockctl unlocks')\n", len(active))
	}
	return nil
}

func runUnlocks(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	active, err := a.service.ActiveUnlocks(context.Background())
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Println("No temporary unlocks in force.")
		return nil
	}

	for _, u := range active {
		scope := "whole rule"
		if u.AppName != "" {
			scope = u.AppName
		}
		fmt.Printf("%s  rule=%s  scope=%s  expires %s\n",
			u.ID, u.RuleID, scope, u.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runWorkoutLog(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	date := workoutDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", workoutDate)
	}
	if workoutMinutes <= 0 {
		return fmt.Errorf("minutes must be positive")
	}

	session := domain.WorkoutSession{
		ID:              newID(),
		Date:            date,
		Activity:        workoutKind,
		DurationMinutes: workoutMinutes,
		LoggedAt:        time.Now().UTC(),
	}
	if err := a.store.LogWorkout(context.Background(), session); err != nil {
		return err
	}

	total, err := a.store.TotalMinutesForDate(context.Background(), date)
	if err != nil {
		return err
	}
	fmt.Printf("Logged %d min on %s (day total: %d min)\n", workoutMinutes, date, total)
	return nil
}

func runCompact(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	pruned, err := a.store.PruneExpiredUnlocks(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d expired unlock(s)\n", pruned)
	return nil
}

func scheduleDays(s domain.WeeklySchedule) []string {
	if len(s.Days) == 0 {
		return []string{"every day"}
	}
	return s.Days
}
