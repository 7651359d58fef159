package config

import (
	"fmt"

	"nudge/internal/engine"
	"nudge/internal/gateway"
)

// BuildJobTable converts the jobs section into the engine's validated,
// constructed-once job table.
func BuildJobTable(jobs []JobConfig) (*engine.JobTable, error) {
	defs := make([]engine.JobDefinition, 0, len(jobs))
	for _, jc := range jobs {
		rule, err := engine.ParseRule(jc.Eligibility)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", jc.Name, err)
		}
		def := engine.JobDefinition{
			Name:  jc.Name,
			Level: engine.Level(jc.Level),
			Schedule: engine.Schedule{
				Cron:            jc.Schedule.Cron,
				TargetLocalHour: jc.Schedule.TargetLocalHour,
			},
			Message: gateway.Message{
				Title: jc.Message.Title,
				Body:  jc.Message.Body,
				Data:  jc.Message.Data,
			},
			Rule: rule,
		}
		if w := jc.Schedule.Window; w != nil {
			def.Schedule.Window = &engine.HourWindow{Start: w.Start, End: w.End}
		}
		defs = append(defs, def)
	}
	return engine.NewJobTable(defs)
}
