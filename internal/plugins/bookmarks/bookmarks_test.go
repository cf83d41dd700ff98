package bookmarks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/handler/handlertest"
	"github.com/igusev/launchq/internal/index"
)

const bookmarksYAML = `
- name: Go Documentation
  url: https://go.dev/doc/
  description: Official docs
  tags: [golang, reference]
- name: Hacker News
  url: https://news.ycombinator.com
- url: https://example.com
- name: Broken
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func newTestHandler(t *testing.T, path string, launcher *desktop.Launcher) *Handler {
	t.Helper()
	h, err := New(path, index.DefaultConfig(), launcher)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func rebuild(t *testing.T, h *Handler) {
	t.Helper()
	h.Rebuild()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.WaitForIndex(ctx); err != nil {
		t.Fatalf("WaitForIndex failed: %v", err)
	}
}

func searchIDs(h *Handler, query string) []string {
	ids := []string{}
	for _, ri := range h.Search(handlertest.NewQuery(query)) {
		ids = append(ids, ri.Item.ID)
	}
	return ids
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	writeFile(t, path, bookmarksYAML)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 bookmarks (entry without url skipped), got %d", len(got))
	}
	if got[2].Name != "https://example.com" {
		t.Errorf("bookmark without name should use its url, got %q", got[2].Name)
	}
	if !reflect.DeepEqual(got[0].Tags, []string{"golang", "reference"}) {
		t.Errorf("Tags = %v", got[0].Tags)
	}
}

func TestLoad_MissingAndInvalid(t *testing.T) {
	dir := t.TempDir()

	got, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil || got != nil {
		t.Errorf("Load(missing) = %v, %v, want nil, nil", got, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "name: [unterminated")
	if _, err := Load(bad); err == nil {
		t.Error("Load should fail on invalid yaml")
	}
}

func TestHandler_Search(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	writeFile(t, path, bookmarksYAML)
	h := newTestHandler(t, path, nil)
	rebuild(t, h)

	tests := []struct {
		query    string
		expected []string
	}{
		{query: "go doc", expected: []string{"https://go.dev/doc/"}},
		{query: "golang", expected: []string{"https://go.dev/doc/"}},
		{query: "hacker", expected: []string{"https://news.ycombinator.com"}},
		{query: "zzzz", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := searchIDs(h, tt.query); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestHandler_Actions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	writeFile(t, path, bookmarksYAML)

	var opened []string
	var copied string
	launcher := desktop.New(
		desktop.WithRunner(func(cmd *exec.Cmd, wait bool) error {
			opened = append(opened, cmd.Args[len(cmd.Args)-1])
			return nil
		}),
		desktop.WithClipboard(func(text string) error {
			copied = text
			return nil
		}),
	)
	h := newTestHandler(t, path, launcher)
	rebuild(t, h)

	q := handlertest.NewQuery("hacker")
	if err := h.HandleTriggerQuery(q); err != nil {
		t.Fatalf("HandleTriggerQuery failed: %v", err)
	}
	items := q.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", q.IDs())
	}
	item := items[0]

	if item.CompletionString() != "https://news.ycombinator.com" {
		t.Errorf("CompletionString() = %q, want the url", item.CompletionString())
	}
	copyAction, _ := item.Action("copy")
	if err := copyAction.Run(); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if copied != "https://news.ycombinator.com" {
		t.Errorf("copied = %q", copied)
	}

	openAction, ok := item.Action("open")
	if !ok || !openAction.HideOnTrigger {
		t.Fatal("open action missing or does not hide the window")
	}
	// Fails only on platforms without an opener
	if err := openAction.Run(); err == nil && (len(opened) != 1 || opened[0] != "https://news.ycombinator.com") {
		t.Errorf("opened = %v", opened)
	}
}

func TestHandler_WatchRebuildsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	writeFile(t, path, "- name: Alpha\n  url: https://alpha.example\n")
	h := newTestHandler(t, path, nil)
	rebuild(t, h)

	if err := h.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := h.Watch(); err != nil {
		t.Fatalf("second Watch failed: %v", err)
	}

	writeFile(t, path, "- name: Alpha\n  url: https://alpha.example\n- name: Beta\n  url: https://beta.example\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := searchIDs(h, "beta"); len(got) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("index was not rebuilt after the file changed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
