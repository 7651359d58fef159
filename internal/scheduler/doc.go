// Package scheduler owns the recurring triggers for every registered
// notification job. Each job gets its own cron entry; ticks are
// executed by a small worker pool, so jobs fire independently and may
// overlap in wall-clock time. A failed tick is logged (and optionally
// alerted) and the job simply waits for its next trigger; there is no
// retry queue and no failed state.
package scheduler
