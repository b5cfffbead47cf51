// Package release runs the release as an ordered list of stages over a
// shared release context.
//
// Stages are either fatal or tolerant. The first failing fatal stage stops
// the run; a failing tolerant stage is recorded in the report and the run
// continues with the next stage.
package release

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/jmsnll/ext-release/internal/config"
	"github.com/jmsnll/ext-release/internal/progress"
	"github.com/jmsnll/ext-release/internal/version"
)

// Context accumulates what earlier stages produced for later ones.
type Context struct {
	Config     *config.Config
	Descriptor version.Descriptor
	Name       string // Project name from the primary manifest
	Version    string // Version chosen for this release
	Pushed     bool   // The release commit reached the remote
}

// Stage is one step of the release.
type Stage struct {
	Name     string // Stable identifier, used in reports
	Title    string // Shown while the stage runs
	Tolerant bool   // Failure is recorded but does not stop the run
	Run      func(ctx context.Context, rc *Context) (string, error)
}

// Outcome is the result of one executed stage.
type Outcome struct {
	Stage    string
	Tolerant bool
	State    progress.State
	Message  string
	Err      error
}

// Report lists the outcome of every stage that ran, in order.
type Report struct {
	Outcomes []Outcome
}

// Ignored returns the tolerant stages that failed.
func (r Report) Ignored() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Tolerant && o.State == progress.Failed {
			out = append(out, o)
		}
	}
	return out
}

// Ran reports whether the named stage was executed.
func (r Report) Ran(name string) bool {
	for _, o := range r.Outcomes {
		if o.Stage == name {
			return true
		}
	}
	return false
}

// StageError is returned when a fatal stage fails.
type StageError struct {
	Stage  string
	Err    error
	Pushed bool // The release commit was already pushed when the stage failed
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	if e.Pushed {
		msg += " (the release commit was already pushed; bump the version again before re-running)"
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs stages in order.
type Pipeline struct {
	Stages   []Stage
	Reporter progress.Reporter
}

// Run executes every stage against rc. It returns the report and, if a fatal
// stage failed or ctx was cancelled, a *StageError.
func (p *Pipeline) Run(ctx context.Context, rc *Context) (Report, error) {
	log := clog.FromContext(ctx)
	var report Report

	for _, s := range p.Stages {
		p.update(progress.Step{Name: s.Name, State: progress.Pending, Message: s.Title})
	}

	for _, s := range p.Stages {
		if err := ctx.Err(); err != nil {
			return report, &StageError{Stage: s.Name, Err: err, Pushed: rc.Pushed}
		}

		p.update(progress.Step{Name: s.Name, State: progress.Running, Message: s.Title})
		log.Debugf("Starting stage %s", s.Name)

		msg, err := s.Run(ctx, rc)
		outcome := Outcome{Stage: s.Name, Tolerant: s.Tolerant, Message: msg, Err: err}
		if err == nil {
			outcome.State = progress.Succeeded
			if outcome.Message == "" {
				outcome.Message = s.Title
			}
			report.Outcomes = append(report.Outcomes, outcome)
			p.update(progress.Step{Name: s.Name, State: progress.Succeeded, Message: outcome.Message})
			continue
		}

		outcome.State = progress.Failed
		outcome.Message = fmt.Sprintf("%s: %v", s.Title, err)
		report.Outcomes = append(report.Outcomes, outcome)
		p.update(progress.Step{Name: s.Name, State: progress.Failed, Message: outcome.Message})

		if s.Tolerant {
			log.With("stage", s.Name).Warnf("Ignoring failure: %v", err)
			continue
		}
		return report, &StageError{Stage: s.Name, Err: err, Pushed: rc.Pushed}
	}
	return report, nil
}

func (p *Pipeline) update(step progress.Step) {
	if p.Reporter != nil {
		p.Reporter.Update(step)
	}
}
