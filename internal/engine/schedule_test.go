package engine

import (
	"testing"
	"time"
)

func hourPtr(h int) *int { return &h }

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestIsDueTargetHourBoundaries(t *testing.T) {
	t.Parallel()
	s := Schedule{TargetLocalHour: hourPtr(8)}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"one second before", time.Date(2024, 6, 5, 7, 59, 59, 0, time.UTC), false},
		{"window opens", time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC), true},
		{"last second inside", time.Date(2024, 6, 5, 8, 59, 59, 0, time.UTC), true},
		{"window closes", time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(tt.now, time.UTC, s); got != tt.want {
				t.Fatalf("IsDue(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestIsDueUsesRecipientLocalHour(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	s := Schedule{TargetLocalHour: hourPtr(20)}

	// 00:15 UTC on Jun 6 is 20:15 on Jun 5 in New York (EDT, UTC-4).
	now := time.Date(2024, 6, 6, 0, 15, 0, 0, time.UTC)
	if !IsDue(now, ny, s) {
		t.Fatal("expected due at 20:15 local")
	}
	if IsDue(now, time.UTC, s) {
		t.Fatal("00:15 UTC must not match hour 20 in UTC")
	}
}

func TestIsDueAcrossDSTTransition(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	s := Schedule{TargetLocalHour: hourPtr(8)}

	// 2024-03-10: clocks jump 02:00 EST -> 03:00 EDT. Local 08:00 that
	// day is 12:00 UTC; the day before it was 13:00 UTC.
	dueCount := 0
	for utcHour := 0; utcHour < 24; utcHour++ {
		now := time.Date(2024, 3, 10, utcHour, 30, 0, 0, time.UTC)
		if IsDue(now, ny, s) {
			dueCount++
			if got := now.In(ny).Hour(); got != 8 {
				t.Fatalf("due at local hour %d", got)
			}
		}
	}
	// Exactly one UTC hour maps onto local hour 8 on the transition day.
	if dueCount != 1 {
		t.Fatalf("due during %d UTC hours on DST day, want 1", dueCount)
	}
}

func TestIsDueWindow(t *testing.T) {
	t.Parallel()
	s := Schedule{Window: &HourWindow{Start: 9, End: 12}}

	for h, want := range map[int]bool{8: false, 9: true, 11: true, 12: false} {
		now := time.Date(2024, 6, 5, h, 30, 0, 0, time.UTC)
		if got := IsDue(now, time.UTC, s); got != want {
			t.Fatalf("hour %d: IsDue = %v, want %v", h, got, want)
		}
	}
}

func TestIsDueCronOnly(t *testing.T) {
	t.Parallel()
	s := Schedule{Cron: "*/5 * * * *"}
	if !IsDue(time.Date(2024, 6, 5, 3, 0, 0, 0, time.UTC), time.UTC, s) {
		t.Fatal("cron-only schedules gate on the trigger, not the local clock")
	}
}

func TestAlreadySentToday(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")

	t.Run("same local day", func(t *testing.T) {
		localNow := time.Date(2024, 6, 5, 21, 0, 0, 0, ny)
		lastSent := time.Date(2024, 6, 5, 20, 10, 0, 0, ny).UTC()
		if !AlreadySentToday(lastSent, localNow) {
			t.Fatal("want true for a send earlier the same local day")
		}
	})

	t.Run("utc day differs but local day matches", func(t *testing.T) {
		// 00:15 UTC Jun 6 == 20:15 local Jun 5.
		localNow := time.Date(2024, 6, 6, 0, 15, 0, 0, time.UTC).In(ny)
		lastSent := time.Date(2024, 6, 5, 23, 30, 0, 0, time.UTC)
		if !AlreadySentToday(lastSent, localNow) {
			t.Fatal("a send at 19:30 local the same evening counts as today")
		}
	})

	t.Run("local midnight crossed", func(t *testing.T) {
		// lastSent 23:30 local May 31; now 00:30 local Jun 1.
		lastSent := time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC) // 23:30 EDT May 31
		localNow := time.Date(2024, 6, 1, 4, 30, 0, 0, time.UTC).In(ny)
		if AlreadySentToday(lastSent, localNow) {
			t.Fatal("yesterday's send must not block today")
		}
	})

	t.Run("zero watermark", func(t *testing.T) {
		if AlreadySentToday(time.Time{}, time.Now()) {
			t.Fatal("zero watermark means never sent")
		}
	})
}

func TestScheduleValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"cron only", Schedule{Cron: "0 * * * *"}, false},
		{"target hour", Schedule{TargetLocalHour: hourPtr(20)}, false},
		{"window", Schedule{Window: &HourWindow{Start: 9, End: 17}}, false},
		{"nothing set", Schedule{}, true},
		{"two forms", Schedule{Cron: "0 * * * *", TargetLocalHour: hourPtr(8)}, true},
		{"hour out of range", Schedule{TargetLocalHour: hourPtr(24)}, true},
		{"inverted window", Schedule{Window: &HourWindow{Start: 17, End: 9}}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
