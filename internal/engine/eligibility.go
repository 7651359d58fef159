package engine

import (
	"fmt"
	"strings"
	"time"
)

// Rule is a job's eligibility condition, applied after the schedule
// window and the daily watermark checks. Rules are plain data so job
// definitions stay declarative and each rule is testable on its own.
type Rule string

const (
	// RuleAlwaysDue applies no condition beyond the schedule window.
	RuleAlwaysDue Rule = "always"

	// RuleNotOpenedToday holds when the device has never opened the app,
	// or last opened it strictly before local midnight of the current
	// day. Used by end-of-day reminder jobs.
	RuleNotOpenedToday Rule = "not_opened_today"
)

// ParseRule maps a config string onto a known rule. Empty means always.
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return RuleAlwaysDue, nil
	case "not_opened_today":
		return RuleNotOpenedToday, nil
	default:
		return "", fmt.Errorf("unknown eligibility rule %q", s)
	}
}

// ruleHolds evaluates a rule for one recipient. lastOpened may be nil
// (the device never reported an app open).
func ruleHolds(rule Rule, lastOpened *time.Time, localNow time.Time) bool {
	switch rule {
	case RuleNotOpenedToday:
		if lastOpened == nil {
			return true
		}
		return lastOpened.In(localNow.Location()).Before(localMidnight(localNow))
	default:
		return true
	}
}
