package directory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nudge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteTimeLayout is RFC3339 with a fixed-width nanosecond fraction.
// Stored UTC timestamps must sort lexicographically in time order for
// the MAX() watermark upsert; variable-width fractions would break that
// ("...:00.5Z" sorts before "...:00Z").
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteDirectory serves single-node deployments where the app and the
// engine share one database file. Timestamps are stored as
// sqliteTimeLayout text in UTC.
type sqliteDirectory struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Directory, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite directory: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	d := &sqliteDirectory{db: db, log: log}
	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *sqliteDirectory) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, string(b))
	return err
}

func (d *sqliteDirectory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *sqliteDirectory) FindRecipientsWithTokens(ctx context.Context) ([]Record, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.user_id, t.token, t.timezone, t.last_opened_app_at, w.job_name, w.sent_at
		FROM device_tokens t
		LEFT JOIN notification_watermarks w ON w.token = t.token
		ORDER BY t.user_id, t.token`)
	if err != nil {
		return nil, fmt.Errorf("directory: load recipients: %w", err)
	}
	defer rows.Close()

	var (
		records []Record
		cur     *Record
		curTok  *DeviceToken
	)
	for rows.Next() {
		var (
			userID, token   string
			tz, lastOpened  sql.NullString
			jobName, sentAt sql.NullString
		)
		if err := rows.Scan(&userID, &token, &tz, &lastOpened, &jobName, &sentAt); err != nil {
			return nil, fmt.Errorf("directory: scan recipient: %w", err)
		}

		if cur == nil || cur.UserID != userID {
			records = append(records, Record{UserID: userID})
			cur = &records[len(records)-1]
			curTok = nil
		}
		if curTok == nil || curTok.Token != token {
			dt := DeviceToken{Token: token, LastSent: map[string]time.Time{}}
			if tz.Valid {
				v := tz.String
				dt.Timezone = &v
			}
			if t, ok := parseStoredTime(lastOpened); ok {
				dt.LastOpenedAppAt = &t
			}
			cur.Tokens = append(cur.Tokens, dt)
			curTok = &cur.Tokens[len(cur.Tokens)-1]
		}
		if jobName.Valid {
			if t, ok := parseStoredTime(sentAt); ok {
				curTok.LastSent[jobName.String] = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: load recipients: %w", err)
	}
	return records, nil
}

func (d *sqliteDirectory) BulkSetLastSent(ctx context.Context, jobName string, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	ts := at.UTC().Format(sqliteTimeLayout)
	// MAX keeps the watermark advance-only; the fixed-width layout in
	// UTC sorts lexicographically in time order.
	args := make([]any, 0, len(tokens)*3)
	var sb strings.Builder
	sb.WriteString(`INSERT INTO notification_watermarks (token, job_name, sent_at) VALUES `)
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?)")
		args = append(args, tok, jobName, ts)
	}
	sb.WriteString(` ON CONFLICT (token, job_name) DO UPDATE SET sent_at = MAX(sent_at, excluded.sent_at)`)
	if _, err := d.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("directory: set last_sent for %q: %w", jobName, err)
	}
	return nil
}

func (d *sqliteDirectory) BulkRemoveTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("directory: remove tokens: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ph := placeholders(len(tokens))
	args := make([]any, len(tokens))
	for i, t := range tokens {
		args[i] = t
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_watermarks WHERE token IN (`+ph+`)`, args...); err != nil {
		return fmt.Errorf("directory: remove tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE token IN (`+ph+`)`, args...); err != nil {
		return fmt.Errorf("directory: remove tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("directory: remove tokens: %w", err)
	}
	d.log.Info("pruned dead tokens", logx.Int("count", len(tokens)))
	return nil
}

// placeholders returns "?,?,...,?" with n slots.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func parseStoredTime(v sql.NullString) (time.Time, bool) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
