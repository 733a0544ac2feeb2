// Package templates renders the HTML views served by the status server.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/wqingest/internal/core"
)

// StatusView is the data behind the status page.
type StatusView struct {
	SourceTag   string
	Inbox       string
	Archive     string
	Target      string
	Job         string
	WorkerState string
	Processed   int64
	Runs        []core.RunResult
	Now         time.Time
}

// Status renders the full status page.
func Status(v StatusView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}

		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta http-equiv="refresh" content="30">`)
		p.raw(`<title>`)
		p.text(v.SourceTag + " WQ Ingest")
		p.raw(`</title><style>`)
		p.raw(stylesheet)
		p.raw(`</style></head><body>`)

		p.raw(`<h1>`)
		p.text(v.SourceTag + " WQ Ingest")
		p.raw(`</h1><dl class="summary">`)
		p.field("Worker", v.WorkerState)
		p.field("Files processed", fmt.Sprint(v.Processed))
		p.field("Inbox", v.Inbox)
		p.field("Archive", v.Archive)
		p.field("Target table", v.Target)
		job := v.Job
		if job == "" {
			job = "(none)"
		}
		p.field("Downstream job", job)
		p.raw(`</dl>`)

		if len(v.Runs) == 0 {
			p.raw(`<p class="empty">No files processed since startup.</p>`)
		} else {
			p.raw(`<table><thead><tr><th>Started</th><th>File</th><th>Outcome</th>`)
			p.raw(`<th>Rows</th><th>Job</th><th>Duration</th><th>Message</th></tr></thead><tbody>`)
			for _, r := range v.Runs {
				p.run(r)
			}
			p.raw(`</tbody></table>`)
		}

		p.raw(`<footer>Rendered `)
		p.text(v.Now.Format(time.RFC3339))
		p.raw(`</footer></body></html>`)
		return p.err
	})
}

// ErrorAlert renders a standalone error fragment.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<div class="alert alert-error" role="alert"><strong>`)
		p.text(message)
		p.raw(`</strong>`)
		if action != "" {
			p.raw(`<p>`)
			p.text(action)
			p.raw(`</p>`)
		}
		p.raw(`<small>Code: `)
		p.text(code)
		p.raw(`</small></div>`)
		return p.err
	})
}

// page writes HTML, remembering the first write error.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *page) field(label, value string) {
	p.raw(`<dt>`)
	p.text(label)
	p.raw(`</dt><dd>`)
	p.text(value)
	p.raw(`</dd>`)
}

func (p *page) run(r core.RunResult) {
	p.raw(`<tr class="`)
	p.text(rowClass(r))
	p.raw(`"><td>`)
	p.text(r.StartedAt.Format("2006-01-02 15:04:05"))
	p.raw(`</td><td>`)
	p.text(r.File)
	p.raw(`</td><td>`)
	p.text(outcome(r))
	p.raw(`</td><td>`)
	p.text(fmt.Sprint(r.Rows))
	p.raw(`</td><td>`)
	if r.Job != nil {
		p.text(r.Job.State.String())
	}
	p.raw(`</td><td>`)
	p.text(r.Duration.Round(time.Millisecond).String())
	p.raw(`</td><td><pre>`)
	p.text(r.Message)
	p.raw(`</pre></td></tr>`)
}

func outcome(r core.RunResult) string {
	if r.Reason != "" {
		return r.Verdict + " (" + string(r.Reason) + ")"
	}
	if r.Error != "" {
		return "error"
	}
	return r.Verdict
}

func rowClass(r core.RunResult) string {
	if r.Category == "" {
		return "run"
	}
	return "run run-" + strings.ToLower(string(r.Category))
}

const stylesheet = `
body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
h1{font-size:1.4rem}
dl.summary{display:grid;grid-template-columns:max-content auto;gap:.25rem 1rem}
dt{font-weight:600}
table{border-collapse:collapse;width:100%;margin-top:1.5rem;font-size:.9rem}
th,td{border-bottom:1px solid #d9e2ec;padding:.4rem;text-align:left;vertical-align:top}
pre{margin:0;white-space:pre-wrap;font-family:inherit}
tr.run-success td:nth-child(3){color:#2f7d32}
tr.run-notice td:nth-child(3){color:#b26a00}
tr.run-error td:nth-child(3){color:#b71c1c;font-weight:600}
.empty{color:#7b8794}
.alert-error{border:1px solid #b71c1c;padding:.75rem;color:#b71c1c}
footer{margin-top:2rem;color:#7b8794;font-size:.8rem}
`
