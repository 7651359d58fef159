// Package engine implements the notification pipeline that runs on every
// scheduled tick: load directory records, filter to recipients whose
// local clock is inside the job's window and who haven't been notified
// today, collapse shared tokens to one recipient each, fan the message
// out through the push gateway in capped batches, and fold the per-token
// results back into the directory (watermarks and pruning).
//
// The pipeline holds no state between ticks. Overlapping runs of the
// same job are safe: the daily watermark is advance-only and both
// directory mutations are idempotent filter-by-token operations.
package engine
