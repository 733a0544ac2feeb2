package core

// pipeline.go is the per-file driver: gate, load, reconcile, downstream job,
// notify. It is the single place where failures are classified.
//
// Classification:
//
//	Skipped              no notification
//	Rejected             Notice
//	any error            Error (I/O, database, count mismatch, job timeout or failure)
//	otherwise            Success
//
// Exactly one notification is sent per processed file.

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/JonMunkholm/wqingest/internal/jobs"
	"github.com/JonMunkholm/wqingest/internal/logging"
	"github.com/JonMunkholm/wqingest/internal/notify"
)

// PipelineDeps wires a Pipeline.
type PipelineDeps struct {
	Gate     *Gate
	Counter  RowCounter
	Loader   TableLoader
	Target   string    // table name, for messages
	Jobs     JobRunner // nil disables the downstream job
	JobID    string
	Notifier Notifier
	History  *History // optional
}

// Pipeline processes one file at a time. It is not safe for concurrent use;
// the Worker serializes calls.
type Pipeline struct {
	d   PipelineDeps
	now func() time.Time
}

// NewPipeline creates a pipeline.
func NewPipeline(d PipelineDeps) *Pipeline {
	return &Pipeline{d: d, now: time.Now}
}

// Process runs the whole pipeline over one file and reports the outcome.
func (p *Pipeline) Process(ctx context.Context, path string) (res RunResult) {
	res = RunResult{
		ID:        uuid.NewString(),
		Path:      path,
		File:      filepath.Base(path),
		StartedAt: p.now(),
	}
	ctx = logging.ContextWithRunID(ctx, res.ID)
	log := logging.WithFields(ctx, "file", res.File)

	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, &res, errors.Newf("panic while processing file: %v", r))
		}
		res.Duration = p.now().Sub(res.StartedAt)
		if p.d.History != nil && res.Category != "" {
			p.d.History.Add(res)
		}
		log.Info("run finished",
			"verdict", res.Verdict,
			"category", string(res.Category),
			"rows", res.Rows,
			"duration", res.Duration,
		)
	}()

	log.Info("processing file", "path", path)

	out, err := p.d.Gate.Evaluate(ctx, path)
	res.Verdict = out.Verdict.String()
	res.Reason = out.Reason
	if err != nil {
		p.fail(ctx, &res, err)
		return res
	}

	switch out.Verdict {
	case VerdictSkipped:
		log.Debug("skipping system artifact")
		return res
	case VerdictRejected:
		p.reject(ctx, &res, out)
		return res
	}

	rs := out.Records
	log.Info("gate passed", "rows", rs.Len(), "archived_to", out.ArchivedTo)

	inserted, err := p.d.Loader.Replace(ctx, rs)
	if err != nil {
		p.fail(ctx, &res, errors.Wrapf(err, "load %s", p.d.Target))
		return res
	}

	after, err := p.d.Counter.CountRows(ctx)
	if err != nil {
		p.fail(ctx, &res, errors.Wrap(err, "re-count after load"))
		return res
	}
	if after != int64(rs.Len()) {
		p.fail(ctx, &res, errors.Wrapf(ErrCountMismatch,
			"%s has %d rows after load, file has %d (insert reported %d)",
			p.d.Target, after, rs.Len(), inserted))
		return res
	}
	res.Rows = rs.Len()

	if p.d.Jobs != nil && p.d.JobID != "" {
		run, err := p.d.Jobs.Run(ctx, p.d.JobID)
		res.Job = &run
		if err != nil {
			p.fail(ctx, &res, err)
			return res
		}
	}

	p.succeed(ctx, &res)
	return res
}

func (p *Pipeline) succeed(ctx context.Context, res *RunResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "Loaded %d rows from %s into %s.", res.Rows, res.File, p.d.Target)
	if res.Job != nil {
		fmt.Fprintf(&b, "\nDownstream job %s succeeded after %s.", res.Job.JobID, res.Job.Elapsed)
	}
	p.dispatch(ctx, res, notify.Success, b.String())
}

func (p *Pipeline) reject(ctx context.Context, res *RunResult, out Outcome) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s was rejected: %s", res.File, out.Reason)
	if out.Detail != "" {
		fmt.Fprintf(&b, " (%s)", out.Detail)
	}
	fmt.Fprintf(&b, ".\n%s", FormatUserError(out.Err()))
	if out.ArchivedTo != "" {
		fmt.Fprintf(&b, "\nThe file was archived to %s.", out.ArchivedTo)
	} else {
		b.WriteString("\nThe file was left in the inbox.")
	}

	logging.FromContext(ctx).Warn("file rejected", "file", res.File, "reason", out.Reason, "detail", out.Detail)
	p.dispatch(ctx, res, notify.Notice, b.String())
}

func (p *Pipeline) fail(ctx context.Context, res *RunResult, err error) {
	res.Error = err.Error()

	var b strings.Builder
	fmt.Fprintf(&b, "Processing %s failed: %s", res.File, FormatUserError(err))
	if errors.Is(err, jobs.ErrJobTimeout) || errors.Is(err, jobs.ErrJobFailed) {
		fmt.Fprintf(&b, "\nThe table load itself succeeded; %s holds the new data.", p.d.Target)
	}
	fmt.Fprintf(&b, "\n\nDetail: %v", err)

	logging.FromContext(ctx).Error("run failed", "file", res.File, "error", err)
	p.dispatch(ctx, res, notify.Error, b.String())
}

func (p *Pipeline) dispatch(ctx context.Context, res *RunResult, c notify.Category, msg string) {
	if res.Category != "" {
		return // already reported
	}
	res.Category = c
	res.Message = msg
	if p.d.Notifier != nil {
		p.d.Notifier.Notify(ctx, c, msg)
	}
}
