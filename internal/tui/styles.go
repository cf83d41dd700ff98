package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ColorScheme holds all adaptive color definitions for the TUI
type ColorScheme struct {
	// Title and branding
	Title     lipgloss.AdaptiveColor
	BrandMark string // Pre-rendered gradient mark
	Version   lipgloss.AdaptiveColor

	// Input prompt
	Prompt   lipgloss.AdaptiveColor
	Synopsis lipgloss.AdaptiveColor

	// Result list
	Normal     lipgloss.AdaptiveColor
	Selected   lipgloss.AdaptiveColor
	SelectedBg lipgloss.AdaptiveColor
	Highlight  lipgloss.AdaptiveColor // Matched query token
	Subtext    lipgloss.AdaptiveColor
	Score      lipgloss.AdaptiveColor

	// Status and counts
	Count       lipgloss.AdaptiveColor
	CountActive lipgloss.AdaptiveColor
	Trigger     lipgloss.AdaptiveColor // Active trigger badge

	// Indicators
	Cursor lipgloss.AdaptiveColor

	// Status indicators
	StatusActive lipgloss.AdaptiveColor // Green while handlers are running
	StatusError  lipgloss.AdaptiveColor // Red after a failed action
	StatusIdle   lipgloss.AdaptiveColor

	// Help text
	Help lipgloss.AdaptiveColor
}

// NewColorScheme creates a new color scheme with adaptive colors for terminal theme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		Title: lipgloss.AdaptiveColor{
			Light: "#5B21B6", // Deep violet for light backgrounds
			Dark:  "#C4B5FD", // Lavender for dark backgrounds
		},

		BrandMark: renderBrandMark(),

		Version: lipgloss.AdaptiveColor{
			Light: "#666666",
			Dark:  "#6967A3",
		},

		Prompt: lipgloss.AdaptiveColor{
			Light: "#7C3AED",
			Dark:  "#A78BFA",
		},

		Synopsis: lipgloss.AdaptiveColor{
			Light: "#A3A3A3",
			Dark:  "#5A5A5A",
		},

		Normal: lipgloss.AdaptiveColor{
			Light: "#1A1A1A",
			Dark:  "#F7F1FF",
		},

		Selected: lipgloss.AdaptiveColor{
			Light: "#000000",
			Dark:  "#E4E4E4",
		},

		SelectedBg: lipgloss.AdaptiveColor{
			Light: "#E0E0E0",
			Dark:  "#303030",
		},

		Highlight: lipgloss.AdaptiveColor{
			Light: "#D97706",
			Dark:  "#FCE566",
		},

		Subtext: lipgloss.AdaptiveColor{
			Light: "#737373",
			Dark:  "#999999",
		},

		Score: lipgloss.AdaptiveColor{
			Light: "#8A8A8A",
			Dark:  "#626262",
		},

		Count: lipgloss.AdaptiveColor{
			Light: "#666666",
			Dark:  "#6967A3",
		},

		CountActive: lipgloss.AdaptiveColor{
			Light: "#D97706",
			Dark:  "#FCE566",
		},

		Trigger: lipgloss.AdaptiveColor{
			Light: "#0066CC",
			Dark:  "#5AD4E6",
		},

		Cursor: lipgloss.AdaptiveColor{
			Light: "#8B5CF6",
			Dark:  "#8B5CF6",
		},

		StatusActive: lipgloss.AdaptiveColor{
			Light: "#16A34A",
			Dark:  "#7BD88F",
		},

		StatusError: lipgloss.AdaptiveColor{
			Light: "#DC2626",
			Dark:  "#FC618D",
		},

		StatusIdle: lipgloss.AdaptiveColor{
			Light: "#737373",
			Dark:  "#666666",
		},

		Help: lipgloss.AdaptiveColor{
			Light: "#737373",
			Dark:  "#666666",
		},
	}
}

// renderBrandMark renders ▶▶▶ fading from violet to cyan
// Colors: #7C3AED (0%) → #6366F1 (50%) → #22D3EE (100%)
func renderBrandMark() string {
	stops := []struct {
		position float64
		color    [3]int // RGB
	}{
		{0.0, [3]int{0x7C, 0x3A, 0xED}},
		{0.5, [3]int{0x63, 0x66, 0xF1}},
		{1.0, [3]int{0x22, 0xD3, 0xEE}},
	}

	chars := []string{"▶", "▶", "▶"}

	var result string
	for i, char := range chars {
		position := float64(i) / float64(len(chars)-1)

		var start, end int
		for j := 0; j < len(stops)-1; j++ {
			if position >= stops[j].position && position <= stops[j+1].position {
				start = j
				end = j + 1
				break
			}
		}

		localPos := (position - stops[start].position) / (stops[end].position - stops[start].position)

		r := int(float64(stops[start].color[0]) + float64(stops[end].color[0]-stops[start].color[0])*localPos)
		g := int(float64(stops[start].color[1]) + float64(stops[end].color[1]-stops[start].color[1])*localPos)
		b := int(float64(stops[start].color[2]) + float64(stops[end].color[2]-stops[start].color[2])*localPos)

		color := lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b))
		result += lipgloss.NewStyle().Foreground(color).Render(char)
	}

	return result
}

// GetStyles returns pre-configured lipgloss styles using the color scheme
func (cs *ColorScheme) GetStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(cs.Title),

		Version: lipgloss.NewStyle().
			Foreground(cs.Version),

		Prompt: lipgloss.NewStyle().
			Foreground(cs.Prompt),

		Synopsis: lipgloss.NewStyle().
			Foreground(cs.Synopsis).
			Italic(true),

		Normal: lipgloss.NewStyle().
			Foreground(cs.Normal),

		Selected: lipgloss.NewStyle().
			Foreground(cs.Selected).
			Background(cs.SelectedBg).
			Bold(false),

		Highlight: lipgloss.NewStyle().
			Foreground(cs.Highlight).
			Bold(true),

		Subtext: lipgloss.NewStyle().
			Foreground(cs.Subtext),

		Score: lipgloss.NewStyle().
			Foreground(cs.Score),

		Count: lipgloss.NewStyle().
			Foreground(cs.Count),

		CountActive: lipgloss.NewStyle().
			Bold(true).
			Foreground(cs.CountActive),

		Trigger: lipgloss.NewStyle().
			Bold(true).
			Foreground(cs.Trigger),

		Cursor: lipgloss.NewStyle().
			Foreground(cs.Cursor).
			Bold(true),

		StatusActive: lipgloss.NewStyle().
			Foreground(cs.StatusActive),

		StatusError: lipgloss.NewStyle().
			Foreground(cs.StatusError),

		StatusIdle: lipgloss.NewStyle().
			Foreground(cs.StatusIdle),

		Help: lipgloss.NewStyle().
			Foreground(cs.Help),
	}
}

// Styles holds pre-configured lipgloss styles
type Styles struct {
	Title        lipgloss.Style
	Version      lipgloss.Style
	Prompt       lipgloss.Style
	Synopsis     lipgloss.Style
	Normal       lipgloss.Style
	Selected     lipgloss.Style
	Highlight    lipgloss.Style
	Subtext      lipgloss.Style
	Score        lipgloss.Style
	Count        lipgloss.Style
	CountActive  lipgloss.Style
	Trigger      lipgloss.Style
	Cursor       lipgloss.Style
	StatusActive lipgloss.Style
	StatusError  lipgloss.Style
	StatusIdle   lipgloss.Style
	Help         lipgloss.Style
}
