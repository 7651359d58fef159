package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nudge/pkg/logx"
)

// Expected schema (owned by the application's migration tooling, not us):
//
//	device_tokens(user_id text, token text, timezone text null,
//	              last_opened_app_at timestamptz null,
//	              primary key (user_id, token))
//	notification_watermarks(token text, job_name text, sent_at timestamptz,
//	              primary key (token, job_name))
type postgresDirectory struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Directory, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres directory: dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres directory: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres directory: ping: %w", err)
	}
	return &postgresDirectory{pool: pool, log: log}, nil
}

func (d *postgresDirectory) Close() error {
	d.pool.Close()
	return nil
}

func (d *postgresDirectory) FindRecipientsWithTokens(ctx context.Context) ([]Record, error) {
	rows, err := d.pool.Query(ctx, `
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
			userID, token string
			tz            *string
			lastOpened    *time.Time
			jobName       *string
			sentAt        *time.Time
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
			cur.Tokens = append(cur.Tokens, DeviceToken{
				Token:           token,
				Timezone:        tz,
				LastOpenedAppAt: lastOpened,
				LastSent:        map[string]time.Time{},
			})
			curTok = &cur.Tokens[len(cur.Tokens)-1]
		}
		if jobName != nil && sentAt != nil {
			curTok.LastSent[*jobName] = sentAt.UTC()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: load recipients: %w", err)
	}
	return records, nil
}

func (d *postgresDirectory) BulkSetLastSent(ctx context.Context, jobName string, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	// GREATEST keeps the watermark advance-only under overlapping ticks.
	_, err := d.pool.Exec(ctx, `
		INSERT INTO notification_watermarks (token, job_name, sent_at)
		SELECT unnest($1::text[]), $2, $3
		ON CONFLICT (token, job_name)
		DO UPDATE SET sent_at = GREATEST(notification_watermarks.sent_at, EXCLUDED.sent_at)`,
		tokens, jobName, at.UTC())
	if err != nil {
		return fmt.Errorf("directory: set last_sent for %q: %w", jobName, err)
	}
	return nil
}

func (d *postgresDirectory) BulkRemoveTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM notification_watermarks WHERE token = ANY($1)`, tokens); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM device_tokens WHERE token = ANY($1)`, tokens); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("directory: remove tokens: %w", err)
	}
	d.log.Info("pruned dead tokens", logx.Int("count", len(tokens)))
	return nil
}
