package engine

import (
	"errors"
	"fmt"
	"time"
)

// HourWindow is a half-open local-hour range [Start, End).
type HourWindow struct {
	Start int
	End   int
}

// Schedule decides when a job is due for a given recipient. Exactly one
// form must be set:
//
//   - Cron: a fixed UTC cadence; every recipient is due on every tick.
//   - TargetLocalHour: due while the recipient's local wall clock is
//     inside that hour (HH:00–HH:59), whatever the tick granularity.
//   - Window: due while the recipient's local hour is inside [Start, End).
type Schedule struct {
	Cron            string
	TargetLocalHour *int
	Window          *HourWindow
}

func (s Schedule) validate() error {
	forms := 0
	if s.Cron != "" {
		forms++
	}
	if s.TargetLocalHour != nil {
		forms++
		if h := *s.TargetLocalHour; h < 0 || h > 23 {
			return fmt.Errorf("target_local_hour %d out of range 0-23", h)
		}
	}
	if s.Window != nil {
		forms++
		if s.Window.Start < 0 || s.Window.Start > 23 || s.Window.End < 1 || s.Window.End > 24 {
			return fmt.Errorf("window %d-%d out of range", s.Window.Start, s.Window.End)
		}
		if s.Window.Start >= s.Window.End {
			return fmt.Errorf("window start %d must be before end %d", s.Window.Start, s.Window.End)
		}
	}
	if forms != 1 {
		return errors.New("exactly one of cron, target_local_hour, window must be set")
	}
	return nil
}

// IsDue reports whether nowUTC falls inside the schedule's eligible
// window for a recipient in loc. The hour comparison uses the
// timezone-converted wall clock, so DST days need no special casing.
func IsDue(nowUTC time.Time, loc *time.Location, s Schedule) bool {
	switch {
	case s.TargetLocalHour != nil:
		return nowUTC.In(loc).Hour() == *s.TargetLocalHour
	case s.Window != nil:
		h := nowUTC.In(loc).Hour()
		return h >= s.Window.Start && h < s.Window.End
	default:
		// Pure cron cadence: the trigger itself is the gate.
		return true
	}
}

// AlreadySentToday reports whether lastSent falls on the same local
// calendar day as localNow. The comparison uses integer (year, month,
// day) components in localNow's zone, never formatted strings, so a
// UTC send that crosses a local midnight cannot double-count.
func AlreadySentToday(lastSent, localNow time.Time) bool {
	if lastSent.IsZero() {
		return false
	}
	y1, m1, d1 := lastSent.In(localNow.Location()).Date()
	y2, m2, d2 := localNow.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// localMidnight returns 00:00 of localNow's calendar day in its zone.
func localMidnight(localNow time.Time) time.Time {
	y, m, d := localNow.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, localNow.Location())
}
