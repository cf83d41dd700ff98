package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Brand colors, shared with the TUI gradient
var (
	brandViolet   = lipgloss.Color("#7C3AED")
	brandCyan     = lipgloss.Color("#22D3EE")
	successGreen  = lipgloss.Color("#00C853")
	warningYellow = lipgloss.Color("#FFC107")
	mutedGray     = lipgloss.Color("#9E9E9E")
)

// Style definitions
var (
	// Title style - bold with violet accent
	titleStyle = lipgloss.NewStyle().
			Foreground(brandViolet).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningYellow).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	// Trigger column in listings
	triggerStyle = lipgloss.NewStyle().
			Foreground(brandCyan).
			Bold(true)

	// Path style
	pathStyle = lipgloss.NewStyle().
			Foreground(brandCyan)
)

// printLogo prints the launchq mark with version
func printLogo(w io.Writer, ver string) {
	mark := lipgloss.NewStyle().Foreground(brandViolet).Render("▶▶▶")
	title := titleStyle.Render("launchq")
	versionText := mutedStyle.Render(ver)

	fmt.Fprintf(w, "%s %s %s\n\n", mark, title, versionText)
}

// printTitle prints a styled section title followed by a blank line
func printTitle(w io.Writer, text string) {
	fmt.Fprintln(w, titleStyle.Render(text))
	fmt.Fprintln(w)
}

func printSuccess(w io.Writer, text string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+text))
}

func printWarning(w io.Writer, text string) {
	fmt.Fprintln(w, warningStyle.Render("⚠️  "+text))
}

func printMuted(w io.Writer, text string) {
	fmt.Fprintln(w, mutedStyle.Render(text))
}

func printPath(w io.Writer, path string) {
	fmt.Fprintln(w, pathStyle.Render(path))
}
