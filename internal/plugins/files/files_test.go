package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/igusev/launchq/internal/handler/handlertest"
	"github.com/igusev/launchq/internal/model"
)

// makeTree creates the fixture below a temp root and returns the root
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		".gitignore":              "*.log\nbuild/\n",
		"README.md":               "# readme",
		"notes.log":               "ignored",
		"src/main.go":             "package main",
		"src/util/helper.go":      "package util",
		"src/util/deep/x.go":      "package deep",
		".git/config":             "[core]",
		"node_modules/pkg/idx.js": "",
		"build/out.bin":           "",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
	return root
}

func slashed(paths ...string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.FromSlash(p)
	}
	return out
}

func TestWalk(t *testing.T) {
	root := makeTree(t)

	tests := []struct {
		name     string
		maxDepth int
		expected []string
	}{
		{
			name:     "unlimited",
			maxDepth: 0,
			expected: slashed(".gitignore", "README.md", "src", "src/main.go", "src/util", "src/util/deep", "src/util/deep/x.go", "src/util/helper.go"),
		},
		{
			name:     "depth two",
			maxDepth: 2,
			expected: slashed(".gitignore", "README.md", "src", "src/main.go", "src/util"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := Walk(context.Background(), root, tt.maxDepth, func(rel string, isDir bool) error {
				got = append(got, rel)
				return nil
			})
			if err != nil {
				t.Fatalf("Walk failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Walk() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWalk_MissingRootAndCancel(t *testing.T) {
	if err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), 0, func(string, bool) error {
		t.Error("fn called for missing root")
		return nil
	}); err != nil {
		t.Errorf("Walk(missing) = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Walk(ctx, makeTree(t), 0, func(string, bool) error { return nil }); err == nil {
		t.Error("Walk with cancelled context should fail")
	}
}

func collect(h *Handler, q *handlertest.Query) [][]*model.Item {
	var batches [][]*model.Item
	for batch := range h.Items(q) {
		batches = append(batches, batch)
	}
	return batches
}

func TestItems_EmptyQueryListsEverythingInBatches(t *testing.T) {
	root := makeTree(t)
	h := New([]string{root}, 3, 0, nil)

	batches := collect(h, handlertest.NewQuery(""))

	sizes := make([]int, len(batches))
	var ids []string
	for i, b := range batches {
		sizes[i] = len(b)
		for _, item := range b {
			ids = append(ids, item.ID)
		}
	}
	if !reflect.DeepEqual(sizes, []int{3, 3, 2}) {
		t.Errorf("batch sizes = %v, want [3 3 2]", sizes)
	}
	if ids[1] != filepath.Join(root, "README.md") {
		t.Errorf("second item = %q, want README.md in walk order", ids[1])
	}
}

func TestItems_FuzzyPattern(t *testing.T) {
	root := makeTree(t)
	h := New([]string{root}, 10, 0, nil)

	tests := []struct {
		pattern  string
		expected []string
	}{
		{pattern: "helper", expected: []string{"src/util/helper.go"}},
		{pattern: "util help", expected: []string{"src/util/helper.go"}},
		{pattern: "zzz", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			q := handlertest.NewQuery(tt.pattern)
			q.TriggerStr = "f "

			var got []string
			for _, b := range collect(h, q) {
				for _, item := range b {
					rel, _ := filepath.Rel(root, item.ID)
					got = append(got, filepath.ToSlash(rel))
				}
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Items(%q) = %v, want %v", tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestItems_ItemShape(t *testing.T) {
	root := makeTree(t)
	h := New([]string{root}, 10, 0, nil)
	q := handlertest.NewQuery("helper")
	q.TriggerStr = "f "

	batches := collect(h, q)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one item, got %v", batches)
	}
	item := batches[0][0]

	if item.Text != "helper.go" {
		t.Errorf("Text = %q, want helper.go", item.Text)
	}
	if item.CompletionString() != "f src/util/helper.go" {
		t.Errorf("CompletionString() = %q", item.CompletionString())
	}
	for _, id := range []string{"open", "open-dir", "copy-path"} {
		if _, ok := item.Action(id); !ok {
			t.Errorf("missing action %q", id)
		}
	}
}

func TestMatch_NormalizesScores(t *testing.T) {
	h := New(nil, 10, 0, nil)
	chunk := []candidate{
		{root: "/r", rel: "src/main.go"},
		{root: "/r", rel: "cmd/launchq/main.go"},
		{root: "/r", rel: "main"},
		{root: "/r", rel: "docs"},
	}

	got := h.match("main", chunk, "f ")
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	for i, ri := range got {
		if ri.Score <= 0 || ri.Score > 1 {
			t.Errorf("score %d = %v, want within (0,1]", i, ri.Score)
		}
	}
	if got[0].Score != 1 {
		t.Errorf("best score = %v, want 1", got[0].Score)
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Score > got[j].Score }) {
		t.Error("matches are not sorted by score")
	}
}

func TestMatch_ScoresIndependentOfChunk(t *testing.T) {
	h := New(nil, 10, 0, nil)
	weak := candidate{root: "/r", rel: "docs/manual/aside/index.txt"}

	alone := h.match("main", []candidate{weak}, "f ")
	mixed := h.match("main", []candidate{{root: "/r", rel: "main"}, weak}, "f ")
	if len(alone) != 1 || len(mixed) != 2 {
		t.Fatalf("expected 1 and 2 matches, got %d and %d", len(alone), len(mixed))
	}

	if alone[0].Score >= 1 {
		t.Errorf("best of a weak chunk scored %v, want below 1", alone[0].Score)
	}
	if mixed[0].Score != 1 {
		t.Errorf("exact match scored %v, want 1", mixed[0].Score)
	}
	if mixed[1].Score != alone[0].Score {
		t.Errorf("same path scored %v and %v in different chunks", mixed[1].Score, alone[0].Score)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		score, bound int
		want         float64
	}{
		{65, 65, 1},
		{90, 65, 1},
		{0, 65, 0.5},
		{-65, 65, 1.0 / 3},
	}
	for _, tt := range tests {
		if got := normalize(tt.score, tt.bound); got != tt.want {
			t.Errorf("normalize(%d, %d) = %v, want %v", tt.score, tt.bound, got, tt.want)
		}
	}
	if got := normalize(-1000, 65); got <= 0 {
		t.Errorf("very poor match scored %v, want above 0", got)
	}
}

func TestItems_StopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 600; i++ {
		if err := os.WriteFile(filepath.Join(root, fmt.Sprintf("file-%03d.txt", i)), nil, 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
	h := New([]string{root}, 10, 0, nil)

	n := 0
	for batch := range h.Items(handlertest.NewQuery("file")) {
		if len(batch) != 10 {
			t.Errorf("batch size = %d, want 10", len(batch))
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("consumed %d batches, want 2", n)
	}
}

func TestItems_UsageReordersBatch(t *testing.T) {
	root := makeTree(t)
	h := New([]string{root}, 10, 0, nil)
	q := handlertest.NewQuery("")
	q.Scorer = usageBoost(filepath.Join(root, "src", "main.go"))

	batches := collect(h, q)
	if len(batches) == 0 || batches[0][0].ID != filepath.Join(root, "src", "main.go") {
		t.Errorf("boosted item should lead its batch")
	}
}

type usageBoost string

func (u usageBoost) ModifyMatchScores(ext string, items []model.RankItem) {
	for i := range items {
		if ext == ID && items[i].Item.ID == string(u) {
			items[i].Score += 1
		}
	}
}

func TestDisplayDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	if got := displayDir(filepath.Join(home, "a.txt")); got != "~" {
		t.Errorf("displayDir(home file) = %q, want ~", got)
	}
	if got := displayDir(filepath.Join(home, "docs", "a.txt")); !strings.HasPrefix(got, "~") {
		t.Errorf("displayDir(nested) = %q, want ~ prefix", got)
	}
}
