package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions:
// NO_COLOR set (any value) disables, CLICOLOR_FORCE enables even when
// piped, CLICOLOR=0 disables, otherwise color follows the TTY.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status icons should be printed.
// MERGEWATCH_NO_EMOJI turns them off.
func ShouldUseEmoji() bool {
	if os.Getenv("MERGEWATCH_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// ApplyColorProfile switches lipgloss rendering on or off for the process.
func ApplyColorProfile(color bool) {
	if color {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}
