package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Postgres is the durable Store implementation. Multi-row mutations run in
// transactions so a mid-operation failure never applies partially.
type Postgres struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection and applies any
// pending schema migrations from the embedded migration files.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func (p *Postgres) EnsureParticipant(ctx context.Context, id int64) (*Participant, error) {
	const insert = `
		INSERT INTO participants (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, insert, id); err != nil {
		return nil, fmt.Errorf("store: ensure participant: %w", err)
	}
	return p.Participant(ctx, id)
}

func (p *Postgres) Participant(ctx context.Context, id int64) (*Participant, error) {
	const query = `
		SELECT id, COALESCE(alias, ''), status, banned, complaints
		FROM participants WHERE id = $1`
	return p.scanParticipant(p.db.QueryRowContext(ctx, query, id))
}

func (p *Postgres) ParticipantByAlias(ctx context.Context, alias string) (*Participant, error) {
	const query = `
		SELECT id, COALESCE(alias, ''), status, banned, complaints
		FROM participants WHERE alias = $1`
	return p.scanParticipant(p.db.QueryRowContext(ctx, query, alias))
}

func (p *Postgres) scanParticipant(row *sql.Row) (*Participant, error) {
	var pt Participant
	var status string
	err := row.Scan(&pt.ID, &pt.Alias, &status, &pt.Banned, &pt.Complaints)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan participant: %w", err)
	}
	pt.Status = Status(status)
	return &pt, nil
}

func (p *Postgres) SetAlias(ctx context.Context, id int64, alias string) error {
	const query = `UPDATE participants SET alias = $2 WHERE id = $1`
	res, err := p.db.ExecContext(ctx, query, id, alias)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrAliasTaken
		}
		return fmt.Errorf("store: set alias: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) SetStatus(ctx context.Context, id int64, status Status) error {
	const query = `UPDATE participants SET status = $2 WHERE id = $1`
	res, err := p.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) Enqueue(ctx context.Context, id int64, at time.Time) error {
	const query = `
		INSERT INTO queue (participant_id, enqueued_at) VALUES ($1, $2)
		ON CONFLICT (participant_id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("store: enqueue: %w", err)
	}
	return nil
}

func (p *Postgres) Dequeue(ctx context.Context, id int64) error {
	const query = `DELETE FROM queue WHERE participant_id = $1`
	if _, err := p.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: dequeue: %w", err)
	}
	return nil
}

func (p *Postgres) PeekEarliest(ctx context.Context, exclude int64) (int64, bool, error) {
	const query = `
		SELECT participant_id FROM queue
		WHERE participant_id != $1
		ORDER BY enqueued_at, participant_id
		LIMIT 1`
	var id int64
	err := p.db.QueryRowContext(ctx, query, exclude).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: peek earliest: %w", err)
	}
	return id, true, nil
}

func (p *Postgres) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: queue len: %w", err)
	}
	return n, nil
}

func (p *Postgres) CreatePair(ctx context.Context, a, b int64, chatID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: create pair begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue WHERE participant_id IN ($1, $2)`, a, b); err != nil {
		return fmt.Errorf("store: create pair dequeue: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pairs (participant_id, partner_id, chat_id) VALUES ($1, $2, $3), ($2, $1, $3)`,
		a, b, chatID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrAlreadyPaired
		}
		return fmt.Errorf("store: create pair insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET status = 'chatting' WHERE id IN ($1, $2)`, a, b); err != nil {
		return fmt.Errorf("store: create pair status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: create pair commit: %w", err)
	}
	return nil
}

func (p *Postgres) Partner(ctx context.Context, id int64) (int64, string, bool, error) {
	const query = `SELECT partner_id, chat_id FROM pairs WHERE participant_id = $1`
	var partner int64
	var chatID string
	err := p.db.QueryRowContext(ctx, query, id).Scan(&partner, &chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("store: partner: %w", err)
	}
	return partner, chatID, true, nil
}

func (p *Postgres) BreakPair(ctx context.Context, id int64) (int64, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("store: break pair begin: %w", err)
	}
	defer tx.Rollback()

	var partner int64
	err = tx.QueryRowContext(ctx,
		`SELECT partner_id FROM pairs WHERE participant_id = $1`, id).Scan(&partner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: break pair lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pairs WHERE participant_id IN ($1, $2)`, id, partner); err != nil {
		return 0, false, fmt.Errorf("store: break pair delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET status = 'idle' WHERE id IN ($1, $2) AND status = 'chatting'`,
		id, partner); err != nil {
		return 0, false, fmt.Errorf("store: break pair status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("store: break pair commit: %w", err)
	}
	return partner, true, nil
}

func (p *Postgres) AppendReport(ctx context.Context, reporter, target int64, reason string, at time.Time) (int64, error) {
	const query = `
		INSERT INTO reports (reporter_id, target_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	var id int64
	err := p.db.QueryRowContext(ctx, query, reporter, target, reason, at).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: append report: %w", err)
	}
	return id, nil
}

func (p *Postgres) OpenReports(ctx context.Context) ([]Report, error) {
	const query = `
		SELECT id, reporter_id, target_id, reason, created_at, resolved, ignored
		FROM reports
		WHERE NOT resolved AND NOT ignored
		ORDER BY created_at, id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: open reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.ReporterID, &r.TargetID, &r.Reason,
			&r.CreatedAt, &r.Resolved, &r.Ignored); err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) IgnoreReport(ctx context.Context, reportID int64) error {
	const query = `UPDATE reports SET ignored = TRUE WHERE id = $1`
	res, err := p.db.ExecContext(ctx, query, reportID)
	if err != nil {
		return fmt.Errorf("store: ignore report: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) ResolveReportsAgainst(ctx context.Context, target int64) error {
	const query = `UPDATE reports SET resolved = TRUE WHERE target_id = $1`
	if _, err := p.db.ExecContext(ctx, query, target); err != nil {
		return fmt.Errorf("store: resolve reports: %w", err)
	}
	return nil
}

func (p *Postgres) IncrementComplaints(ctx context.Context, id int64) (int, error) {
	const query = `
		UPDATE participants SET complaints = complaints + 1
		WHERE id = $1
		RETURNING complaints`
	var n int
	err := p.db.QueryRowContext(ctx, query, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: increment complaints: %w", err)
	}
	return n, nil
}

func (p *Postgres) ClearComplaints(ctx context.Context, id int64) error {
	const query = `UPDATE participants SET complaints = 0 WHERE id = $1`
	res, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: clear complaints: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) AddBan(ctx context.Context, id int64, reason string, at time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: add ban begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bans (participant_id, reason, banned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (participant_id) DO NOTHING`, id, reason, at); err != nil {
		return fmt.Errorf("store: add ban insert: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE participants SET banned = TRUE, status = 'banned' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: add ban flag: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: add ban commit: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveBan(ctx context.Context, id int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: remove ban begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM bans WHERE participant_id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: remove ban delete: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET banned = FALSE, status = 'idle' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: remove ban flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: remove ban commit: %w", err)
	}
	return nil
}

func (p *Postgres) Bans(ctx context.Context) ([]BanRecord, error) {
	const query = `
		SELECT participant_id, reason, banned_at FROM bans
		ORDER BY banned_at, participant_id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: bans: %w", err)
	}
	defer rows.Close()

	var out []BanRecord
	for rows.Next() {
		var b BanRecord
		if err := rows.Scan(&b.ParticipantID, &b.Reason, &b.BannedAt); err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) IsBanned(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM bans WHERE participant_id = $1)`
	var banned bool
	if err := p.db.QueryRowContext(ctx, query, id).Scan(&banned); err != nil {
		return false, fmt.Errorf("store: is banned: %w", err)
	}
	return banned, nil
}

func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM participants),
			(SELECT COUNT(*) FROM participants WHERE status = 'idle'),
			(SELECT COUNT(*) FROM participants WHERE status = 'waiting'),
			(SELECT COUNT(*) FROM participants WHERE status = 'chatting'),
			(SELECT COUNT(*) FROM participants WHERE status = 'banned'),
			(SELECT COUNT(*) FROM queue),
			(SELECT COUNT(*) / 2 FROM pairs),
			(SELECT COALESCE(SUM(complaints), 0) FROM participants),
			(SELECT COUNT(*) FROM reports WHERE NOT resolved AND NOT ignored)`
	var st Stats
	err := p.db.QueryRowContext(ctx, query).Scan(
		&st.Participants, &st.Idle, &st.Waiting, &st.Chatting, &st.Banned,
		&st.Queued, &st.ActivePairs, &st.Complaints, &st.OpenReports)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return &st, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// checkAffected maps "zero rows updated" to ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
