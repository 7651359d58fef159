package scheduler

import "sort"

// JobSnapshot combines a job's static definition summary with its most
// recent run, for the admin API.
type JobSnapshot struct {
	Name    string     `json:"name"`
	Level   string     `json:"level"`
	Spec    string     `json:"spec"`
	LastRun *RunRecord `json:"last_run,omitempty"`
}

// Snapshot returns one entry per registered job, sorted by name.
func (s *Service) Snapshot() []JobSnapshot {
	s.hmu.Lock()
	defer s.hmu.Unlock()

	out := make([]JobSnapshot, 0, s.table.Len())
	for _, job := range s.table.Jobs() {
		snap := JobSnapshot{
			Name:  job.Name,
			Level: string(job.Level),
			Spec:  s.specFor(job),
		}
		if rec, ok := s.lastRun[job.Name]; ok {
			cp := rec
			snap.LastRun = &cp
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns the recent run records, oldest first.
func (s *Service) History() []RunRecord {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]RunRecord(nil), s.history...)
}
