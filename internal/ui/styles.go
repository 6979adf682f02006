// Package ui renders harness output for the terminal: branch state trees,
// scenario results and the color handling shared by the log handler.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu palette, adapting to light and dark terminals.
var (
	green  = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	yellow = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	red    = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	gray   = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	blue   = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(green)
	warnStyle   = lipgloss.NewStyle().Foreground(yellow)
	failStyle   = lipgloss.NewStyle().Foreground(red)
	mutedStyle  = lipgloss.NewStyle().Foreground(gray)
	accentStyle = lipgloss.NewStyle().Foreground(blue)
	nodeStyle   = lipgloss.NewStyle().Bold(true)
)

// Edge and result markers.
const (
	iconPass = "✓"
	iconLag  = "⚠"
	iconFail = "✗"
	iconSkip = "-"
)

const (
	treeChild  = "├─ "
	treeLast   = "└─ "
	treeIndent = "  "
)

var separator = strings.Repeat("─", 42)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderNode renders a node name as a tree heading.
func RenderNode(name string) string { return nodeStyle.Render(name) }

func RenderPassIcon() string { return passStyle.Render(iconPass) }
func RenderLagIcon() string  { return warnStyle.Render(iconLag) }
func RenderFailIcon() string { return failStyle.Render(iconFail) }
func RenderSkipIcon() string { return mutedStyle.Render(iconSkip) }

func renderSeparator() string { return mutedStyle.Render(separator) }
