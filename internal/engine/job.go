package engine

import (
	"fmt"
	"strings"

	"nudge/internal/gateway"
)

// Level selects the unit eligibility is computed over: each physical
// device token on its own, or a whole user record at once.
type Level string

const (
	LevelUser   Level = "user"
	LevelDevice Level = "device"
)

// JobDefinition is one recurring notification job. Definitions are
// immutable after the JobTable is built at startup.
type JobDefinition struct {
	Name     string
	Level    Level
	Schedule Schedule
	Message  gateway.Message
	Rule     Rule
}

func (j JobDefinition) validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Level != LevelUser && j.Level != LevelDevice {
		return fmt.Errorf("job %q: level must be %q or %q", j.Name, LevelUser, LevelDevice)
	}
	if err := j.Schedule.validate(); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	if strings.TrimSpace(j.Message.Title) == "" && strings.TrimSpace(j.Message.Body) == "" {
		return fmt.Errorf("job %q: message title or body is required", j.Name)
	}
	switch j.Rule {
	case RuleAlwaysDue, RuleNotOpenedToday:
	default:
		return fmt.Errorf("job %q: unknown eligibility rule %q", j.Name, j.Rule)
	}
	return nil
}

// JobTable is the constructed-once registry of job definitions, built
// from config at startup and handed to the scheduler. There is no
// global registry and no post-start registration.
type JobTable struct {
	jobs   []JobDefinition
	byName map[string]int
}

func NewJobTable(jobs []JobDefinition) (*JobTable, error) {
	t := &JobTable{byName: make(map[string]int, len(jobs))}
	for _, j := range jobs {
		if err := j.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byName[j.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %q", j.Name)
		}
		t.byName[j.Name] = len(t.jobs)
		t.jobs = append(t.jobs, j)
	}
	return t, nil
}

// Jobs returns definitions in registration order.
func (t *JobTable) Jobs() []JobDefinition {
	return append([]JobDefinition(nil), t.jobs...)
}

func (t *JobTable) Lookup(name string) (JobDefinition, bool) {
	i, ok := t.byName[name]
	if !ok {
		return JobDefinition{}, false
	}
	return t.jobs[i], true
}

func (t *JobTable) Len() int { return len(t.jobs) }
