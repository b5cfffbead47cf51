package manifest

import (
	"bytes"
	"strings"
)

// DefaultIndent is used when no indentation can be detected, e.g. for a
// missing or single-line file.
const DefaultIndent = "  "

type indentKey struct {
	char  byte
	width int
}

// DetectIndent returns the indentation unit used by raw (a run of tabs or
// spaces), or "" if the text has no indented lines. The unit is the most
// frequent increase in leading whitespace between consecutive non-blank lines.
func DetectIndent(raw []byte) string {
	counts := map[indentKey]int{}
	var order []indentKey

	prevWidth := 0
	var prevChar byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		width := 0
		for width < len(line) && (line[width] == ' ' || line[width] == '\t') {
			width++
		}
		var char byte
		if width > 0 {
			char = line[0]
		}

		if width > prevWidth && (prevWidth == 0 || char == prevChar) {
			k := indentKey{char: char, width: width - prevWidth}
			if _, seen := counts[k]; !seen {
				order = append(order, k)
			}
			counts[k]++
		}
		prevWidth, prevChar = width, char
	}

	var best indentKey
	bestCount := 0
	for _, k := range order {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	if bestCount == 0 {
		return ""
	}
	return strings.Repeat(string(best.char), best.width)
}

// indentOrDefault detects the indentation of raw, falling back to DefaultIndent.
func indentOrDefault(raw []byte) string {
	if indent := DetectIndent(raw); indent != "" {
		return indent
	}
	return DefaultIndent
}
