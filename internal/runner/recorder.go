package runner

import (
	"context"
	"strings"
)

// Recorder is a Runner that records invocations instead of starting processes.
// Commands succeed unless they match a prefix registered with FailWith.
type Recorder struct {
	Calls []Command

	// Hook, when set, runs for every command that is not configured to fail.
	// Tests use it to emulate side effects such as a build populating dist/.
	Hook func(Command) (Result, error)

	failures []failure
}

type failure struct {
	prefix string
	code   int
}

// FailWith makes every command whose command line starts with prefix exit with code.
func (r *Recorder) FailWith(prefix string, code int) {
	r.failures = append(r.failures, failure{prefix: prefix, code: code})
}

// Run records the command and returns the configured result.
func (r *Recorder) Run(ctx context.Context, c Command) (Result, error) {
	r.Calls = append(r.Calls, c)
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	line := c.String()
	for _, f := range r.failures {
		if strings.HasPrefix(line, f.prefix) {
			res := Result{ExitCode: f.code, Stderr: "simulated failure"}
			return res, &ExitError{Command: c, Code: f.code, Output: res.Output()}
		}
	}
	if r.Hook != nil {
		return r.Hook(c)
	}
	return Result{}, nil
}

// Lines returns the recorded command lines in call order.
func (r *Recorder) Lines() []string {
	lines := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		lines[i] = c.String()
	}
	return lines
}

// Index returns the position of the first call whose command line starts
// with prefix, or -1.
func (r *Recorder) Index(prefix string) int {
	for i, c := range r.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			return i
		}
	}
	return -1
}
