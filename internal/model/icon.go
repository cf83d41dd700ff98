package model

import (
	"net/url"
	"strconv"
)

// Icon URL schemes understood by frontends
const (
	SchemeXDG       = "xdg:"
	SchemeFile      = "file:"
	SchemeQRC       = "qrc:"
	SchemeGenerated = "gen:"
)

// XDGIcon returns an icon URL resolved through the XDG icon theme
func XDGIcon(name string) string {
	return SchemeXDG + name
}

// FileIcon returns an icon URL for an image file on disk
func FileIcon(path string) string {
	return SchemeFile + path
}

// GeneratedIcon returns an icon URL describing a rendered glyph icon.
// Empty colors are omitted so the frontend can apply its palette; scale <= 0 means default.
func GeneratedIcon(background, foreground, text string, scale float64) string {
	v := url.Values{}
	if background != "" {
		v.Set("background", background)
	}
	if foreground != "" {
		v.Set("foreground", foreground)
	}
	if text != "" {
		v.Set("text", text)
	}
	if scale > 0 {
		v.Set("scalar", strconv.FormatFloat(scale, 'f', -1, 64))
	}
	return SchemeGenerated + "?" + v.Encode()
}
