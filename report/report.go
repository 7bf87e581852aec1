// Package report prints the operator-facing progress of a migration: skip
// notices, archive entry names, publish output, the DONE marker and
// categorised failure lines. It is not a logger; lines are meant for a
// terminal and carry no structure.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/input-output-hk/migrate-npm-registry/errors"
)

// Failure messages shown for the known failure categories.
const (
	MsgNoNetwork   = "Error. No network"
	MsgSyntax      = "Syntax error. Please check your internet connection or registry URLs."
	MsgSourceFetch = "Error fetching source metadata"
	MsgCancelled   = "Cancelled"
	MsgDone        = "DONE"
)

// Status is the fate of one source version.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// VersionOutcome records what happened to one version of a package. Reason
// explains a skip and Err a failure.
type VersionOutcome struct {
	Version string
	Status  Status
	Reason  string
	Err     error
}

// Reporter writes progress lines. It is safe for concurrent use; every
// method writes whole lines under one lock.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix bool

	skipColor    *color.Color
	doneColor    *color.Color
	failColor    *color.Color
	faintColor   *color.Color
	packageColor *color.Color
}

type reporterOptions struct {
	color  bool
	prefix bool
}

// Option configures a Reporter.
type Option func(*reporterOptions)

// WithColor turns ANSI colours on or off. Off by default.
func WithColor(enabled bool) Option {
	return func(o *reporterOptions) {
		o.color = enabled
	}
}

// WithPackagePrefix starts every line with "<package>: ", which keeps the
// output of concurrent jobs apart.
func WithPackagePrefix(enabled bool) Option {
	return func(o *reporterOptions) {
		o.prefix = enabled
	}
}

// New creates a Reporter writing to w.
func New(w io.Writer, opts ...Option) *Reporter {
	o := &reporterOptions{}
	for _, opt := range opts {
		opt(o)
	}

	r := &Reporter{
		w:            w,
		prefix:       o.prefix,
		skipColor:    color.New(color.FgYellow),
		doneColor:    color.New(color.FgGreen, color.Bold),
		failColor:    color.New(color.FgRed, color.Bold),
		faintColor:   color.New(color.Faint),
		packageColor: color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.skipColor, r.doneColor, r.failColor, r.faintColor, r.packageColor} {
		if o.color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Skip reports a version left out of the migration.
func (r *Reporter) Skip(pkg, version, reason string) {
	r.println(pkg, r.skipColor.Sprint(version+" "+reason))
}

// Entry reports one archive entry as it is copied.
func (r *Reporter) Entry(pkg, version, name string) {
	r.println(pkg, name)
}

// PublishOutput relays the stdout of a publish invocation line by line.
func (r *Reporter) PublishOutput(pkg, output string) {
	output = strings.TrimRight(output, "\r\n")
	if output == "" {
		return
	}
	r.println(pkg, strings.Split(output, "\n")...)
}

// Done reports a fully successful job.
func (r *Reporter) Done(pkg string) {
	r.println(pkg, r.doneColor.Sprint(MsgDone))
}

// Failure reports a failed job with a message chosen by error category.
func (r *Reporter) Failure(pkg string, err error) {
	r.println(pkg, r.failColor.Sprint(FailureMessage(err)))
}

// Summary lists the outcome of every version of a job.
func (r *Reporter) Summary(pkg string, outcomes []VersionOutcome) {
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		line := o.Version + " " + string(o.Status)
		switch o.Status {
		case StatusSkipped:
			line = r.faintColor.Sprint(line)
		case StatusPublished:
			line = r.doneColor.Sprint(line)
		case StatusFailed:
			line = r.failColor.Sprint(line)
			if o.Err != nil {
				line += ": " + o.Err.Error()
			}
		case StatusCancelled:
			line = r.skipColor.Sprint(line)
		}
		lines = append(lines, line)
	}
	r.println(pkg, lines...)
}

// FailureMessage maps an error to the line shown to the operator.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.HasCode(err, errors.CodeNetworkUnreachable):
		return MsgNoNetwork
	case errors.HasCode(err, errors.CodeMetadataParse):
		return MsgSyntax
	case errors.HasCode(err, errors.CodeSourceFetch):
		return MsgSourceFetch
	case errors.IsCancelled(err):
		return MsgCancelled
	default:
		return "Error: " + err.Error()
	}
}

func (r *Reporter) println(pkg string, lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range lines {
		if r.prefix {
			_, _ = fmt.Fprintf(r.w, "%s: %s\n", r.packageColor.Sprint(pkg), line)
			continue
		}
		_, _ = fmt.Fprintln(r.w, line)
	}
}
