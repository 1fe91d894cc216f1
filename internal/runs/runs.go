// Package runs keeps the history of scheduled runs and their account reports.
package runs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/aove-scheduler/internal/db"
)

const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

type Run struct {
	ID         uuid.UUID
	Mode       string
	Status     string
	Accounts   int
	LastError  *string
	StartedAt  time.Time
	FinishedAt *time.Time
}

type Report struct {
	Index  int
	Label  string
	Failed bool
	Body   string
}

// Recorder is what a run writes to. Errors are the caller's to log; a
// failing recorder never stops a run.
type Recorder interface {
	Start(ctx context.Context, mode string) (uuid.UUID, error)
	AddReport(ctx context.Context, runID uuid.UUID, r Report) error
	Finish(ctx context.Context, runID uuid.UUID, accounts int, runErr error) error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Start(context.Context, string) (uuid.UUID, error)    { return uuid.New(), nil }
func (Nop) AddReport(context.Context, uuid.UUID, Report) error  { return nil }
func (Nop) Finish(context.Context, uuid.UUID, int, error) error { return nil }

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Start(ctx context.Context, mode string) (uuid.UUID, error) {
	id := uuid.New()
	err := r.db.Exec(ctx, `INSERT INTO runs(id, mode, status) VALUES ($1,$2,$3)`, id, mode, StatusRunning)
	return id, err
}

func (r *Repo) AddReport(ctx context.Context, runID uuid.UUID, rep Report) error {
	return r.db.Exec(ctx, `
INSERT INTO run_reports(run_id, account_index, label, failed, body) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id, account_index) DO UPDATE SET label=EXCLUDED.label, failed=EXCLUDED.failed, body=EXCLUDED.body`,
		runID, rep.Index, rep.Label, rep.Failed, rep.Body)
}

func (r *Repo) Finish(ctx context.Context, runID uuid.UUID, accounts int, runErr error) error {
	status := StatusFinished
	var lastErr *string
	if runErr != nil {
		status = StatusFailed
		msg := runErr.Error()
		lastErr = &msg
	}
	return r.db.Exec(ctx, `UPDATE runs SET status=$2, accounts=$3, last_error=$4, finished_at=now() WHERE id=$1`,
		runID, status, accounts, lastErr)
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,mode,status,accounts,last_error,started_at,finished_at
FROM runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Mode, &run.Status, &run.Accounts, &run.LastError, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Run, []Report, error) {
	var run Run
	err := r.db.QueryRow(ctx, `
SELECT id,mode,status,accounts,last_error,started_at,finished_at
FROM runs WHERE id=$1`, id).
		Scan(&run.ID, &run.Mode, &run.Status, &run.Accounts, &run.LastError, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return Run{}, nil, db.WrapNotFound(err)
	}

	rows, err := r.db.Query(ctx, `
SELECT account_index,label,failed,body
FROM run_reports WHERE run_id=$1
ORDER BY account_index ASC`, id)
	if err != nil {
		return Run{}, nil, err
	}
	defer rows.Close()

	var reps []Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.Index, &rep.Label, &rep.Failed, &rep.Body); err != nil {
			return Run{}, nil, err
		}
		reps = append(reps, rep)
	}
	return run, reps, rows.Err()
}

// LastStart returns when the most recent run of mode began.
func (r *Repo) LastStart(ctx context.Context, mode string) (time.Time, bool, error) {
	var t time.Time
	err := r.db.QueryRow(ctx, `SELECT started_at FROM runs WHERE mode=$1 ORDER BY started_at DESC LIMIT 1`, mode).Scan(&t)
	if db.IsNotFound(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Duration is zero while the run is still going.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
}
