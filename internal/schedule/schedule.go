// Package schedule evaluates weekly blocking windows.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

// weekdays maps the accepted lowercase English day names.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseClock converts a zero-padded "HH:MM" 24-hour value to minutes
// past midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: clock value %q is not HH:MM", domain.ErrInvalidRule, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: clock value %q is not HH:MM", domain.ErrInvalidRule, s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	min := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || min > 59 {
		return 0, fmt.Errorf("%w: clock value %q out of range", domain.ErrInvalidRule, s)
	}
	return hour*60 + min, nil
}

// Validate checks a schedule's day names and clock strings.
func Validate(s domain.WeeklySchedule) error {
	for _, d := range s.Days {
		if _, ok := weekdays[d]; !ok {
			return fmt.Errorf("%w: unknown weekday %q", domain.ErrInvalidRule, d)
		}
	}
	if _, err := ParseClock(s.Start); err != nil {
		return err
	}
	if _, err := ParseClock(s.End); err != nil {
		return err
	}
	return nil
}

// IsActive reports whether now falls inside the schedule's window.
// Evaluation is in UTC and both endpoints are inclusive. A window
// whose End precedes its Start matches nothing: there is no wrap past
// midnight. Pure function of its inputs, safe for concurrent callers.
func IsActive(s domain.WeeklySchedule, now time.Time) bool {
	now = now.UTC()

	if len(s.Days) > 0 {
		today := strings.ToLower(now.Weekday().String())
		match := false
		for _, d := range s.Days {
			if strings.ToLower(d) == today {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	start, err := ParseClock(s.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	return start <= cur && cur <= end
}
