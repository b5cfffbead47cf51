package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external process invocation.
type Command struct {
	Name string   // Executable name or path (looked up in PATH)
	Args []string // Arguments passed to the executable
	Dir  string   // Working directory; empty means the current one
	Env  []string // Extra KEY=VALUE pairs appended to the inherited environment

	// Stream forwards the process output to the runner's writers while it runs,
	// in addition to capturing it. Used for long commands like builds.
	Stream bool
}

// String renders the command line, for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds what a finished process produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// Runner executes external commands. Implementations block until the process exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError reports a process that started but exited with a non-zero code.
type ExitError struct {
	Command Command
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("'%s' exited with code %d", e.Command.String(), e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ". Output:\n" + out
	}
	return msg
}

// Exec runs commands with os/exec.
type Exec struct {
	Stdout io.Writer // Destination for streamed stdout (defaults to os.Stdout)
	Stderr io.Writer // Destination for streamed stderr (defaults to os.Stderr)
}

// Run starts the command and waits for it. Cancelling ctx kills the process.
func (e Exec) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var outb, errb bytes.Buffer
	if c.Stream {
		cmd.Stdout = io.MultiWriter(&outb, orDefault(e.Stdout, os.Stdout))
		cmd.Stderr = io.MultiWriter(&errb, orDefault(e.Stderr, os.Stderr))
	} else {
		cmd.Stdout = &outb
		cmd.Stderr = &errb
	}

	err := cmd.Run()
	res := Result{Stdout: outb.String(), Stderr: errb.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Command: c, Code: res.ExitCode, Output: res.Output()}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("failed to execute '%s': %w", c.String(), err)
	}
	return res, nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
