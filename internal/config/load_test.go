package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
directory:
  driver: sqlite
  path: ./nudge.db
gateway:
  credentials_file: ./fcm.json
dispatcher:
  rate_per_sec: 20
jobs:
  - name: EndOfDay
    level: device
    schedule:
      target_local_hour: 20
    message:
      title: "Still looking?"
      body: "New opportunities were posted today"
      data:
        screen: opportunities
    eligibility: not_opened_today
  - name: weekly-sweep
    level: user
    schedule:
      cron: "0 9 * * 1"
    message:
      title: "Your week ahead"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeTemp(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Directory.Driver != "sqlite" {
		t.Fatalf("directory driver = %q", cfg.Directory.Driver)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cfg.Jobs))
	}
	if cfg.Jobs[0].Schedule.TargetLocalHour == nil || *cfg.Jobs[0].Schedule.TargetLocalHour != 20 {
		t.Fatal("target_local_hour not decoded")
	}
	if cfg.Jobs[0].Message.Data["screen"] != "opportunities" {
		t.Fatal("message data not decoded")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Load(writeTemp(t, "config.yaml", validYAML+"\nsurprise: true\n"))
	if err == nil {
		t.Fatal("expected strict decoder to reject unknown top-level field")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("scheduler.tick_timeout", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestBuildJobTable(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeTemp(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	table, err := BuildJobTable(cfg.Jobs)
	if err != nil {
		t.Fatalf("BuildJobTable: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("table len = %d", table.Len())
	}
	job, ok := table.Lookup("EndOfDay")
	if !ok {
		t.Fatal("EndOfDay missing from table")
	}
	if job.Rule != "not_opened_today" {
		t.Fatalf("rule = %q", job.Rule)
	}
}

func TestBuildJobTableValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		jobs []JobConfig
	}{
		{"duplicate names", []JobConfig{
			{Name: "a", Level: "device", Schedule: ScheduleConfig{Cron: "0 * * * *"}, Message: MessageConfig{Title: "x"}},
			{Name: "a", Level: "device", Schedule: ScheduleConfig{Cron: "0 * * * *"}, Message: MessageConfig{Title: "x"}},
		}},
		{"bad level", []JobConfig{
			{Name: "a", Level: "tenant", Schedule: ScheduleConfig{Cron: "0 * * * *"}, Message: MessageConfig{Title: "x"}},
		}},
		{"no schedule form", []JobConfig{
			{Name: "a", Level: "device", Message: MessageConfig{Title: "x"}},
		}},
		{"unknown rule", []JobConfig{
			{Name: "a", Level: "device", Schedule: ScheduleConfig{Cron: "0 * * * *"}, Message: MessageConfig{Title: "x"}, Eligibility: "whenever"},
		}},
		{"empty message", []JobConfig{
			{Name: "a", Level: "device", Schedule: ScheduleConfig{Cron: "0 * * * *"}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildJobTable(tt.jobs); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
