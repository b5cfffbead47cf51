package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/jmsnll/ext-release/internal/manifest"
)

// Fallback is the version assumed when a manifest has none.
const Fallback = "0.0.0"

// Descriptor holds a project's current version and its three candidate successors.
type Descriptor struct {
	Name      string
	Current   string
	NextPatch string
	NextMinor string
	NextMajor string
}

// Resolve reads the manifest at path and derives the version candidates.
// A missing or invalid manifest behaves like an empty object.
func Resolve(path string) Descriptor {
	return FromManifest(manifest.Load(path))
}

// FromManifest derives the descriptor from an already loaded manifest.
func FromManifest(doc *manifest.Document) Descriptor {
	current := doc.GetString("version")
	if current == "" {
		current = Fallback
	}
	patch, minor, major := Increments(current)
	return Descriptor{
		Name:      doc.GetString("name"),
		Current:   current,
		NextPatch: patch,
		NextMinor: minor,
		NextMajor: major,
	}
}

// Increments returns the next patch, minor and major versions of current.
// Pre-release and build metadata are dropped. An unparsable current version
// is treated as Fallback.
func Increments(current string) (patch, minor, major string) {
	v, err := semver.NewVersion(strings.TrimSpace(current))
	if err != nil {
		v = semver.MustParse(Fallback)
	}
	p, m, M := v.IncPatch(), v.IncMinor(), v.IncMajor()
	return p.String(), m.String(), M.String()
}

// Clean normalizes free-form version input: surrounding whitespace and a
// leading "=" or "v" are removed, and the remainder must be a strict
// MAJOR.MINOR.PATCH semantic version (optionally with pre-release/build).
func Clean(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimLeft(s, "=vV")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("version must not be empty")
	}
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return "", fmt.Errorf("%q is not a valid semantic version", strings.TrimSpace(input))
	}
	return v.String(), nil
}

// Choices lists the selectable versions in prompt order.
func (d Descriptor) Choices() []Choice {
	return []Choice{
		{Label: "current", Version: d.Current},
		{Label: "patch", Version: d.NextPatch},
		{Label: "minor", Version: d.NextMinor},
		{Label: "major", Version: d.NextMajor},
	}
}

// Choice is a labelled candidate version.
type Choice struct {
	Label   string
	Version string
}

// Lookup returns the version for a label ("current", "patch", "minor", "major").
func (d Descriptor) Lookup(label string) (string, bool) {
	for _, c := range d.Choices() {
		if c.Label == label {
			return c.Version, true
		}
	}
	return "", false
}
