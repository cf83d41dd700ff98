package tui

import (
	"strings"
	"testing"
)

func TestNewColorScheme(t *testing.T) {
	cs := NewColorScheme()

	if cs == nil {
		t.Fatal("Expected NewColorScheme to return non-nil ColorScheme")
	}

	if cs.BrandMark == "" {
		t.Error("Expected BrandMark to be non-empty")
	}

	if strings.Count(cs.BrandMark, "▶") != 3 {
		t.Errorf("Expected BrandMark to contain three arrows, got %q", cs.BrandMark)
	}
}

func TestGetStyles(t *testing.T) {
	cs := NewColorScheme()
	styles := cs.GetStyles()

	// Styles hold functions and cannot be compared; rendering must not panic
	testStr := "test"
	_ = styles.Title.Render(testStr)
	_ = styles.Version.Render(testStr)
	_ = styles.Prompt.Render(testStr)
	_ = styles.Synopsis.Render(testStr)
	_ = styles.Cursor.Render(testStr)
	_ = styles.Selected.Render(testStr)
	_ = styles.Normal.Render(testStr)
	_ = styles.Highlight.Render(testStr)
	_ = styles.Subtext.Render(testStr)
	_ = styles.Score.Render(testStr)
	_ = styles.Count.Render(testStr)
	_ = styles.CountActive.Render(testStr)
	_ = styles.Trigger.Render(testStr)
	_ = styles.Help.Render(testStr)
	_ = styles.StatusIdle.Render(testStr)
	_ = styles.StatusActive.Render(testStr)
	_ = styles.StatusError.Render(testStr)
}

func TestColorScheme_MultipleInstances(t *testing.T) {
	cs1 := NewColorScheme()
	cs2 := NewColorScheme()

	if cs1.BrandMark != cs2.BrandMark {
		t.Error("Expected BrandMark to be consistent across instances")
	}
}
