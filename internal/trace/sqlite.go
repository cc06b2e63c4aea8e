package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/me/coopsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// --- Runs ---

// CreateRun inserts run. A missing ID, start time or state is filled in.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.State == "" {
		run.State = model.RunStateRunning
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, board, tick_interval_ms, state, started_at, ticks)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Board, run.TickInterval.Milliseconds(), string(run.State),
		run.StartedAt.Format(time.RFC3339Nano), int64(run.Ticks),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `r.id, r.board, r.tick_interval_ms, r.state, r.started_at, r.finished_at, r.ticks,
	(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var intervalMS, ticks int64
	var state, startedAt string
	var finishedAt sql.NullString

	if err := row.Scan(&run.ID, &run.Board, &intervalMS, &state, &startedAt, &finishedAt, &ticks, &run.Dispatches); err != nil {
		return nil, err
	}
	run.TickInterval = time.Duration(intervalMS) * time.Millisecond
	run.State = model.RunState(state)
	run.Ticks = uint64(ticks)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns the run with id, or nil when it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by state.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	var args []any
	if opts.State != "" {
		where = " WHERE r.state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r`+where+` ORDER BY r.started_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// FinishRun moves a running run into a terminal state and records its tick
// count.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, state model.RunState, ticks uint64) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "state", state)

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return model.NewNotFoundError("run", id)
	}
	if !run.State.CanTransitionTo(state) {
		return &model.InvalidTransitionError{Entity: "run", ID: id, From: run.State.String(), To: state.String()}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, finished_at = ?, ticks = ? WHERE id = ?`,
		string(state), time.Now().UTC().Format(time.RFC3339Nano), int64(ticks), id,
	)
	return err
}

// --- Events ---

// AppendEvents inserts a batch of events in one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert_batch", "table", "events", "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, tick, task_index, task_name, state_after, duration_us, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.RunID, ev.Seq, int64(ev.Tick), ev.TaskIndex, ev.TaskName, ev.StateAfter,
			ev.Duration.Microseconds(), ev.At.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", ev.RunID, ev.Seq, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns the events of a run in sequence order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, tick, task_index, task_name, state_after, duration_us, at
		 FROM events WHERE run_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		runID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var tick, durationUS int64
		var at string
		if err := rows.Scan(&ev.RunID, &ev.Seq, &tick, &ev.TaskIndex, &ev.TaskName, &ev.StateAfter, &durationUS, &at); err != nil {
			return nil, 0, err
		}
		ev.Tick = uint64(tick)
		ev.Duration = time.Duration(durationUS) * time.Microsecond
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}
