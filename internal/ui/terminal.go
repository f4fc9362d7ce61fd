package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorEnv overrides color detection: "always", "never" or "auto".
const ColorEnv = "SHINGO_COLOR"

// ShouldUseColor reports whether stdout output should carry ANSI colors.
// SHINGO_COLOR wins, then NO_COLOR, CLICOLOR_FORCE and CLICOLOR, then
// whether stdout is a terminal.
func ShouldUseColor() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(ColorEnv))) {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
