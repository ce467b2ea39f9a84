package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// Status of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run is one deployment run.
type Run struct {
	ID          string
	Environment string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      Status
	// Fingerprint is the BLAKE3 hash of the master configuration that was deployed.
	Fingerprint string
	Added       int
	Removed     int
	Changed     int
	DryRun      bool
	Error       string
}

// History records runs in SQLite.
type History struct {
	db *sql.DB
}

// Open opens the history database at path, which must be on a local filesystem.
func Open(ctx context.Context, path string) (*History, error) {
	if err := checkLocalFilesystem(path); err != nil {
		return nil, err
	}
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &History{db: db}, nil
}

// NewHistory wraps an open database.
func NewHistory(db *sql.DB) *History { return &History{db: db} }

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

// Start records a run as running.
func (h *History) Start(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (id, environment, started_at, status, dry_run) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Environment, formatTime(r.StartedAt), string(StatusRunning), r.DryRun)
	return errors.Wrapf(err, "record run %s", r.ID)
}

// Finish stores the outcome of a run started with Start.
func (h *History) Finish(ctx context.Context, r Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	res, err := h.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, fingerprint = ?, added = ?, removed = ?, changed = ?, error = ?
WHERE id = ?`,
		formatTime(r.FinishedAt), string(r.Status), nullable(r.Fingerprint),
		r.Added, r.Removed, r.Changed, nullable(r.Error), r.ID)
	if err != nil {
		return errors.Wrapf(err, "finish run %s", r.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Mark(errors.Newf("finish run %s: not started", r.ID), ErrRunNotFound)
	}
	return nil
}

const selectRuns = `SELECT id, environment, started_at, finished_at, status, fingerprint, added, removed, changed, dry_run, error FROM runs`

// Get returns one run.
func (h *History) Get(ctx context.Context, id string) (Run, error) {
	rows, err := h.db.QueryContext(ctx, selectRuns+` WHERE id = ?`, id)
	if err != nil {
		return Run{}, errors.Wrap(err, "query run")
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, errors.Mark(errors.Newf("run %s", id), ErrRunNotFound)
	}
	return runs[0], nil
}

// Latest returns up to limit runs, newest first.
func (h *History) Latest(ctx context.Context, limit int) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			r                       Run
			started, status         string
			finished, fp, errString sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Environment, &started, &finished, &status, &fp,
			&r.Added, &r.Removed, &r.Changed, &r.DryRun, &errString); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Status = Status(status)
		r.Fingerprint = fp.String
		r.Error = errString.String
		var err error
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			if r.FinishedAt, err = parseTime(finished.String); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// timeLayout has fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	return t, errors.Wrapf(err, "parse time %q", s)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
