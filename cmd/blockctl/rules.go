package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage blocking rules",
}

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a blocking rule",
	Long: `Creates a rule. With --edit-lock-days the rule becomes immutable and
undeletable for that many days - a pre-commitment, there is no undo.`,
	RunE: runRuleAdd,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	RunE:  runRuleList,
}

var ruleShowCmd = &cobra.Command{
	Use:   "show <rule-id>",
	Short: "Show one rule in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleShow,
}

var ruleUpdateCmd = &cobra.Command{
	Use:   "update <rule-id>",
	Short: "Update a rule (denied while edit-locked or inside its window)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleUpdate,
}

var ruleRmCmd = &cobra.Command{
	Use:   "rm <rule-id>",
	Short: "Delete a rule (denied while edit-locked or inside its window)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleRm,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Request an unlock for a rule",
}

var unlockPasswordCmd = &cobra.Command{
	Use:   "password <rule-id>",
	Short: "Verify a password-based unlock",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlockPassword,
}

var unlockSportCmd = &cobra.Command{
	Use:   "sport <rule-id>",
	Short: "Check whether today's workout minutes earn an unlock",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlockSport,
}

var unlockTempCmd = &cobra.Command{
	Use:   "temp <rule-id>",
	Short: "Grant a temporary unlock window",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlockTemp,
}

var (
	ruleName     string
	ruleApps     []string
	ruleBlockAll bool
	ruleDays     []string
	ruleStart    string
	ruleEnd      string
	ruleMethod   string
	rulePassword string
	ruleSport    int
	ruleLockDays int
	ruleNoTemp   bool
	ruleTempMins int
	ruleStrict   bool
	ruleDisabled bool

	unlockPasswordValue string
	unlockApp           string
)

func init() {
	addFlags := ruleAddCmd.Flags()
	addFlags.StringVar(&ruleName, "name", "", "Display name")
	addFlags.StringSliceVar(&ruleApps, "apps", nil, "Target app identifiers")
	addFlags.BoolVar(&ruleBlockAll, "block-all", false, "Block every app")
	addFlags.StringSliceVar(&ruleDays, "days", nil, "Weekdays (lowercase, e.g. monday); empty = every day")
	addFlags.StringVar(&ruleStart, "start", "00:00", "Window start (HH:MM, UTC)")
	addFlags.StringVar(&ruleEnd, "end", "23:59", "Window end (HH:MM, UTC); must not precede start")
	addFlags.StringVar(&ruleMethod, "unlock-method", "password", "Unlock method: password, activity, or both")
	addFlags.StringVar(&rulePassword, "password", "", "Unlock password (required for password/both)")
	addFlags.IntVar(&ruleSport, "sport-minutes", 30, "Workout minutes required for an activity unlock")
	addFlags.IntVar(&ruleLockDays, "edit-lock-days", 0, "Days the rule stays immutable after creation")
	addFlags.BoolVar(&ruleNoTemp, "no-temp-unlock", false, "Disallow temporary unlocks")
	addFlags.IntVar(&ruleTempMins, "temp-minutes", 5, "Minutes granted per temporary unlock")
	addFlags.BoolVar(&ruleStrict, "strict", false, "Strict mode: refuse temporary unlocks outright")
	_ = ruleAddCmd.MarkFlagRequired("name")

	upFlags := ruleUpdateCmd.Flags()
	upFlags.StringVar(&ruleName, "name", "", "Display name")
	upFlags.StringSliceVar(&ruleApps, "apps", nil, "Target app identifiers")
	upFlags.BoolVar(&ruleBlockAll, "block-all", false, "Block every app")
	upFlags.StringSliceVar(&ruleDays, "days", nil, "Weekdays (lowercase)")
	upFlags.StringVar(&ruleStart, "start", "", "Window start (HH:MM, UTC)")
	upFlags.StringVar(&ruleEnd, "end", "", "Window end (HH:MM, UTC)")
	upFlags.StringVar(&ruleMethod, "unlock-method", "", "Unlock method: password, activity, or both")
	upFlags.StringVar(&rulePassword, "password", "", "Unlock password")
	upFlags.IntVar(&ruleSport, "sport-minutes", 0, "Workout minutes required")
	upFlags.BoolVar(&ruleNoTemp, "no-temp-unlock", false, "Disallow temporary unlocks")
	upFlags.IntVar(&ruleTempMins, "temp-minutes", 0, "Minutes granted per temporary unlock")
	upFlags.BoolVar(&ruleStrict, "strict", false, "Strict mode")
	upFlags.BoolVar(&ruleDisabled, "disabled", false, "Soft-disable the rule")

	unlockPasswordCmd.Flags().StringVar(&unlockPasswordValue, "password", "", "Candidate password")
	_ = unlockPasswordCmd.MarkFlagRequired("password")
	unlockTempCmd.Flags().StringVar(&unlockApp, "app", "", "Unlock only this app (default: whole rule)")

	ruleCmd.AddCommand(ruleAddCmd)
	ruleCmd.AddCommand(ruleListCmd)
	ruleCmd.AddCommand(ruleShowCmd)
	ruleCmd.AddCommand(ruleUpdateCmd)
	ruleCmd.AddCommand(ruleRmCmd)

	unlockCmd.AddCommand(unlockPasswordCmd)
	unlockCmd.AddCommand(unlockSportCmd)
	unlockCmd.AddCommand(unlockTempCmd)
}

func newID() string {
	return uuid.NewString()
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	def := domain.RuleDefinition{
		Name:       ruleName,
		TargetApps: ruleApps,
		BlockAll:   ruleBlockAll,
		Schedule: domain.WeeklySchedule{
			Days:  ruleDays,
			Start: ruleStart,
			End:   ruleEnd,
		},
		UnlockMethod:            domain.UnlockMethod(ruleMethod),
		Password:                rulePassword,
		ActivityMinutesRequired: ruleSport,
		EditLockDays:            ruleLockDays,
		AllowTemporaryUnlock:    !ruleNoTemp,
		TemporaryUnlockMinutes:  ruleTempMins,
		StrictMode:              ruleStrict,
	}

	rule, err := a.service.CreateRule(context.Background(), def)
	if err != nil {
		return denyFriendly(err)
	}

	fmt.Printf("Created rule %s\n", rule.ID)
	if rule.EditLockedUntil != nil {
		fmt.Printf("Edit-locked until %s\n", rule.EditLockedUntil.Format(time.RFC3339))
	}
	return nil
}

func runRuleList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	rules, err := a.service.ListRules(context.Background())
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		fmt.Println("No rules defined.")
		return nil
	}

	for _, r := range rules {
		state := "enabled"
		if !r.Active {
			state = "disabled"
		}
		fmt.Printf("%s  %-24s %s-%s %v  [%s]\n",
			r.ID, r.Name, r.Schedule.Start, r.Schedule.End, scheduleDays(r.Schedule), state)
	}
	return nil
}

func runRuleShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.service.GetRule(context.Background(), args[0])
	if err != nil {
		return denyFriendly(err)
	}

	fmt.Printf("ID:            %s\n", r.ID)
	fmt.Printf("Name:          %s\n", r.Name)
	if r.BlockAll {
		fmt.Println("Targets:       all apps")
	} else {
		fmt.Printf("Targets:       %v\n", r.TargetApps)
	}
	fmt.Printf("Window:        %s-%s %v\n", r.Schedule.Start, r.Schedule.End, scheduleDays(r.Schedule))
	fmt.Printf("Unlock method: %s\n", r.UnlockMethod)
	if r.UnlockMethod.RequiresActivity() {
		fmt.Printf("Sport quota:   %d min/day\n", r.ActivityMinutesRequired)
	}
	fmt.Printf("Temp unlocks:  allowed=%t strict=%t minutes=%d\n",
		r.AllowTemporaryUnlock, r.StrictMode, r.TemporaryUnlockMinutes)
	if r.EditLockedUntil != nil {
		fmt.Printf("Edit-locked:   until %s\n", r.EditLockedUntil.Format(time.RFC3339))
	}
	fmt.Printf("Enabled:       %t\n", r.Active)
	fmt.Printf("Created:       %s\n", r.CreatedAt.Format(time.RFC3339))
	return nil
}

func runRuleUpdate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	// Only flags the user actually set become part of the patch.
	patch := domain.RulePatch{}
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &ruleName
	}
	if flags.Changed("apps") {
		patch.TargetApps = &ruleApps
	}
	if flags.Changed("block-all") {
		patch.BlockAll = &ruleBlockAll
	}
	if flags.Changed("days") || flags.Changed("start") || flags.Changed("end") {
		current, err := a.service.GetRule(context.Background(), args[0])
		if err != nil {
			return denyFriendly(err)
		}
		s := current.Schedule
		if flags.Changed("days") {
			s.Days = ruleDays
		}
		if flags.Changed("start") {
			s.Start = ruleStart
		}
		if flags.Changed("end") {
			s.End = ruleEnd
		}
		patch.Schedule = &s
	}
	if flags.Changed("unlock-method") {
		m := domain.UnlockMethod(ruleMethod)
		patch.UnlockMethod = &m
	}
	if flags.Changed("password") {
		patch.Password = &rulePassword
	}
	if flags.Changed("sport-minutes") {
		patch.ActivityMinutesRequired = &ruleSport
	}
	if flags.Changed("no-temp-unlock") {
		allow := !ruleNoTemp
		patch.AllowTemporaryUnlock = &allow
	}
	if flags.Changed("temp-minutes") {
		patch.TemporaryUnlockMinutes = &ruleTempMins
	}
	if flags.Changed("strict") {
		patch.StrictMode = &ruleStrict
	}
	if flags.Changed("disabled") {
		active := !ruleDisabled
		patch.Active = &active
	}

	rule, err := a.service.UpdateRule(context.Background(), args[0], patch)
	if err != nil {
		return denyFriendly(err)
	}
	fmt.Printf("Updated rule %s\n", rule.ID)
	return nil
}

func runRuleRm(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.DeleteRule(context.Background(), args[0]); err != nil {
		return denyFriendly(err)
	}
	fmt.Println("Rule deleted.")
	return nil
}

func runUnlockPassword(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ok, err := a.service.VerifyPassword(context.Background(), args[0], unlockPasswordValue)
	if err != nil {
		return denyFriendly(err)
	}
	if ok {
		fmt.Println("Verified.")
	} else {
		fmt.Println("Wrong password.")
	}
	return nil
}

func runUnlockSport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	check, err := a.service.VerifySportUnlock(context.Background(), args[0])
	if err != nil {
		return denyFriendly(err)
	}
	if check.Verified {
		fmt.Printf("Unlocked: %d of %d required minutes logged today.\n",
			check.MinutesDone, check.MinutesRequired)
	} else {
		fmt.Printf("Not yet: %d of %d required minutes logged today.\n",
			check.MinutesDone, check.MinutesRequired)
	}
	return nil
}

func runUnlockTemp(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	u, err := a.service.GrantTemporaryUnlock(context.Background(), args[0], unlockApp)
	if err != nil {
		return denyFriendly(err)
	}

	scope := "whole rule"
	if u.AppName != "" {
		scope = u.AppName
	}
	fmt.Printf("Unlocked %s until %s (id %s)\n", scope, u.ExpiresAt.Format(time.RFC3339), u.ID)
	return nil
}

// denyFriendly keeps policy denials readable on the terminal while
// leaving internal failures wrapped for debugging.
func denyFriendly(err error) error {
	var lockErr *domain.EditLockError
	switch {
	case errors.As(err, &lockErr):
		return fmt.Errorf("denied: rule is edit-locked until %s", lockErr.Until.Format(time.RFC3339))
	case errors.Is(err, domain.ErrCurrentlyActive):
		return errors.New("denied: rule is inside its enforcement window right now")
	case errors.Is(err, domain.ErrStrictMode):
		return errors.New("denied: strict mode forbids temporary unlocks")
	case errors.Is(err, domain.ErrTemporaryUnlockDisabled):
		return errors.New("denied: temporary unlocks are disabled for this rule")
	}
	return err
}
