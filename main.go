package main

import (
	"os"

	"github.com/jmsnll/ext-release/cmd"
)

// These variables are set via ldflags by GoReleaser or your Makefile
var (
	version = "dev" // Default value if not built with ldflags
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date, builtBy); err != nil {
		os.Exit(1)
	}
}
