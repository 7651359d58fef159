// Package directory is the engine's view of the user/device registry
// owned by the surrounding application. The engine only reads recipient
// records and applies two bulk, filter-by-token mutations: watermark
// stamping and dead-token pruning. Everything else about the registry
// (signup, token registration, profile data) belongs to other services.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"nudge/pkg/logx"
)

// DeviceToken is one push registration under a user record.
//
// Timezone and LastOpenedAppAt are pointers on purpose: a registration
// without a timezone exists legitimately (old app versions never sent
// one) and must be distinguishable from an empty string at the type
// level, because device-level jobs skip such tokens entirely.
type DeviceToken struct {
	Token           string
	Timezone        *string
	LastOpenedAppAt *time.Time

	// LastSent holds per-job watermarks, keyed by job name, in UTC.
	// Advance-only: the stores below never move a watermark backwards.
	LastSent map[string]time.Time
}

// Record is one user directory entry with at least one device token.
type Record struct {
	UserID string
	Tokens []DeviceToken
}

// Directory is the minimal registry API the engine consumes.
//
// Both mutations are idempotent and keyed by token, not by owner, so a
// token shared across several user records is updated everywhere in one
// call and repeated application is safe.
type Directory interface {
	FindRecipientsWithTokens(ctx context.Context) ([]Record, error)
	BulkSetLastSent(ctx context.Context, jobName string, tokens []string, at time.Time) error
	BulkRemoveTokens(ctx context.Context, tokens []string) error
	Close() error
}

// Config configures the directory connection.
//
// Driver values:
//   - "postgres": shared application database (DSN required)
//   - "sqlite": embedded database file (Path required), for single-node
//     and development deployments
type Config struct {
	Driver      string
	DSN         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured directory store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Directory, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown directory driver: " + cfg.Driver)
	}
}
