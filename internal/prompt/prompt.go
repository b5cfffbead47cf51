// Package prompt asks the operator which version to release.
//
// The interactive prompt is a bubbletea program: a list of the current
// version and its three increments, a separator, and a "custom" entry that
// opens a text input validated as a semantic version.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmsnll/ext-release/internal/version"
)

// ErrAborted is returned when the operator leaves the prompt without choosing.
var ErrAborted = errors.New("version selection aborted")

// Prompter picks the version to release.
type Prompter interface {
	Choose(ctx context.Context, d version.Descriptor) (string, error)
}

// Interactive runs the terminal prompt.
type Interactive struct {
	In  io.Reader // Defaults to os.Stdin
	Out io.Writer // Defaults to os.Stdout
}

// Choose blocks until the operator confirms a version or aborts.
func (p Interactive) Choose(ctx context.Context, d version.Descriptor) (string, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}

	final, err := tea.NewProgram(NewModel(d), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("version prompt failed: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return "", fmt.Errorf("version prompt returned unexpected model %T", final)
	}
	return m.Result()
}

// Static always answers with the same version, after validating it like
// custom input. Backs the --set-version flag.
type Static string

func (s Static) Choose(_ context.Context, _ version.Descriptor) (string, error) {
	return version.Clean(string(s))
}

// Label picks one of the descriptor's candidates by name, for --bump
// ("current", "patch", "minor", "major").
type Label string

func (l Label) Choose(_ context.Context, d version.Descriptor) (string, error) {
	v, ok := d.Lookup(string(l))
	if !ok {
		return "", fmt.Errorf("unknown version choice %q", string(l))
	}
	return v, nil
}
