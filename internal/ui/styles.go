package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns a command name as shown in help output.
func RenderCommand(s string) string { return paint(colorOK, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderFail returns s in red.
func RenderFail(s string) string { return paint(colorFail, s) }

// Indicator renders a health indicator: a filled dot and the state when
// known, a hollow muted dot when the component has not reported yet.
func Indicator(name string, state *string, ok bool) string {
	switch {
	case state == nil:
		return RenderMuted("○ " + name + " unknown")
	case ok:
		return RenderOK("●") + " " + name + " " + RenderMuted(*state)
	default:
		return RenderFail("●") + " " + name + " " + RenderFail(*state)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// EnableColor turns color output on or off globally.
func EnableColor(on bool) {
	noColor = !on
}
