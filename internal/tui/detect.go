// Package tui renders command output for terminals and pipes.
package tui

import (
	"os"

	"golang.org/x/term"
)

// Mode is the output mode of a command.
type Mode int

const (
	// ModePlain is used for CI pipelines, scripts and redirected output.
	ModePlain Mode = iota
	// ModeTerminal is used when a human is reading a terminal.
	ModeTerminal
)

// DetectMode reports whether f is a terminal that should receive styled
// output and human-readable logs.
//
// Returns ModePlain if:
//   - PGDBAPI_PLAIN=1 is set
//   - CI is set
//   - NO_COLOR is set
//   - f is not a terminal
func DetectMode(f *os.File) Mode {
	if os.Getenv("PGDBAPI_PLAIN") == "1" || os.Getenv("CI") != "" || os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return ModePlain
	}
	return ModeTerminal
}

// IsTerminal is DetectMode(f) == ModeTerminal.
func IsTerminal(f *os.File) bool {
	return DetectMode(f) == ModeTerminal
}
