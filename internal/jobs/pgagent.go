package jobs

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// pgAgent schedules jobs by setting jobnextrun; the agent picks them up on
// its next poll. A run is visible through pga_job.jobagentid while it is
// executing and through pga_joblog once it has started.
const (
	pgAgentStartQuery = `UPDATE pgagent.pga_job SET jobnextrun = now() WHERE jobname = $1 AND jobenabled RETURNING jobid, jobnextrun`

	pgAgentStatusQuery = `SELECT j.jobagentid IS NOT NULL, l.jlgstatus, l.jlgstart
FROM pgagent.pga_job j
LEFT JOIN LATERAL (
	SELECT jlgstatus, jlgstart FROM pgagent.pga_joblog
	WHERE jlgjobid = j.jobid ORDER BY jlgstart DESC LIMIT 1
) l ON true
WHERE j.jobname = $1`

	pgAgentExistsQuery = `SELECT EXISTS (SELECT 1 FROM pgagent.pga_job WHERE jobname = $1 AND jobenabled)`
)

// PgAgent controls pgAgent jobs by name.
type PgAgent struct {
	db *sql.DB

	mu        sync.Mutex
	requested map[string]time.Time // job name -> start request time (database clock)
}

// NewPgAgent creates a controller over db.
func NewPgAgent(db *sql.DB) *PgAgent {
	return &PgAgent{db: db, requested: make(map[string]time.Time)}
}

// StartJob asks pgAgent to run the job as soon as possible.
// Returns ErrUnknownJob if no enabled job has that name.
func (p *PgAgent) StartJob(ctx context.Context, name string) error {
	var (
		id          int64
		requestedAt time.Time
	)
	err := p.db.QueryRowContext(ctx, pgAgentStartQuery, name).Scan(&id, &requestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrUnknownJob, "pgagent job %q", name)
	}
	if err != nil {
		return errors.Wrap(err, "schedule pgagent job")
	}

	p.mu.Lock()
	p.requested[name] = requestedAt
	p.mu.Unlock()
	return nil
}

// JobStatus reports whether the job is running and its latest logged result.
// A job that was started through this controller but has not been picked up
// by the agent yet counts as running.
func (p *PgAgent) JobStatus(ctx context.Context, name string) (Status, error) {
	var (
		agentBusy bool
		status    sql.NullString
		started   sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, pgAgentStatusQuery, name).Scan(&agentBusy, &status, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, errors.Wrapf(ErrUnknownJob, "pgagent job %q", name)
	}
	if err != nil {
		return Status{}, errors.Wrap(err, "query pgagent job status")
	}

	p.mu.Lock()
	requestedAt, requested := p.requested[name]
	p.mu.Unlock()

	pending := requested && (!started.Valid || started.Time.Before(requestedAt))

	st := Status{
		Running:    agentBusy || pending || status.String == "r",
		LastResult: parseJobLogStatus(status.String),
	}
	return st, nil
}

// Exists returns ErrUnknownJob unless an enabled job with that name exists.
func (p *PgAgent) Exists(ctx context.Context, name string) error {
	var ok bool
	if err := p.db.QueryRowContext(ctx, pgAgentExistsQuery, name).Scan(&ok); err != nil {
		return errors.Wrap(err, "look up pgagent job")
	}
	if !ok {
		return errors.Wrapf(ErrUnknownJob, "pgagent job %q", name)
	}
	return nil
}

// parseJobLogStatus maps pga_joblog.jlgstatus to a Result.
// s = success, f = failed, i = internal failure, d = aborted.
func parseJobLogStatus(s string) Result {
	switch s {
	case "s":
		return ResultSucceeded
	case "f", "i", "d":
		return ResultFailed
	default:
		return ResultUnknown
	}
}
