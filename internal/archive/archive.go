// Package archive assembles zip archives from a staged copy of selected
// project files, using the external zip utility.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/gobwas/glob"

	"github.com/jmsnll/ext-release/internal/runner"
)

// Spec describes one archive.
type Spec struct {
	// Source is the directory Entries are relative to.
	Source string
	// Entries are the files or directories to include. Missing entries are
	// skipped. An empty list copies the whole content of Source.
	Entries []string
	// Dest is the path of the zip file to produce. Its parent directory also
	// holds the temporary staging directory.
	Dest string
	// Exclude lists glob patterns of paths to leave out. A pattern is matched
	// against the slash-separated path relative to Source and against the
	// base name; "*" stops at "/" while "**" does not.
	Exclude []string
	// Prepare, if set, runs on the staging directory after copying and
	// before compressing.
	Prepare func(staging string) error
}

// Archiver builds archives described by Spec.
type Archiver struct {
	Runner runner.Runner
}

// StagingDir returns the directory a spec is staged in: the destination path
// without its extension.
func StagingDir(dest string) string {
	return strings.TrimSuffix(dest, filepath.Ext(dest))
}

// Build stages, prepares and compresses spec. The staging directory is
// removed whether or not the build succeeds.
func (a *Archiver) Build(ctx context.Context, spec Spec) (err error) {
	log := clog.FromContext(ctx)

	staging := StagingDir(spec.Dest)
	if staging == spec.Dest {
		return fmt.Errorf("archive destination %s needs a file extension", spec.Dest)
	}
	excluded, err := compileExcludes(spec.Exclude)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory %s: %w", staging, err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", staging, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Warnf("Failed to remove staging directory %s: %v", staging, rmErr)
		}
	}()

	entries := spec.Entries
	if len(entries) == 0 {
		dirEntries, err := os.ReadDir(spec.Source)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", spec.Source, err)
		}
		for _, e := range dirEntries {
			entries = append(entries, e.Name())
		}
	}

	for _, entry := range entries {
		src := filepath.Join(spec.Source, entry)
		if _, err := os.Lstat(src); os.IsNotExist(err) {
			log.Debugf("Skipping missing archive entry %s", src)
			continue
		}
		if err := copyPath(spec.Source, src, staging, excluded); err != nil {
			return err
		}
	}

	if spec.Prepare != nil {
		if err := spec.Prepare(staging); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", staging, err)
		}
	}

	dest, err := filepath.Abs(spec.Dest)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", spec.Dest, err)
	}
	// zip -r adds to an existing archive instead of replacing it.
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace existing archive %s: %w", dest, err)
	}

	cmd := runner.Command{Name: "zip", Args: []string{"-r", "-q", dest, "."}, Dir: staging}
	log.Debugf("Executing: %s (in %s)", cmd.String(), staging)
	if _, err := a.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to create archive %s: %w", dest, err)
	}
	return nil
}

type matcher func(rel string) bool

func compileExcludes(patterns []string) (matcher, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return func(rel string) bool {
		base := path.Base(rel)
		for _, g := range globs {
			if g.Match(rel) || g.Match(base) {
				return true
			}
		}
		return false
	}, nil
}

// copyPath copies the file, symlink or directory tree src, which lies under
// root, to the same relative location under staging.
func copyPath(root, src, staging string, excluded matcher) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if excluded(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(staging, rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("failed to read link %s: %w", p, err)
			}
			return os.Symlink(link, target)
		default:
			return copyFile(p, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
