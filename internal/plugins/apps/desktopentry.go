package apps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/igusev/launchq/internal/desktop"
)

const desktopEntryGroup = "[Desktop Entry]"

// Entry is the subset of a freedesktop .desktop file the handler uses
type Entry struct {
	ID          string // Desktop file id, e.g. "org.gnome.Nautilus.desktop"
	Path        string
	Type        string
	Name        string
	GenericName string
	Comment     string
	Keywords    []string
	Exec        string
	Icon        string
	Terminal    bool
	NoDisplay   bool
	Hidden      bool
}

// Visible reports whether the entry should be offered as an application
func (e *Entry) Visible() bool {
	return e.Type == "Application" && !e.NoDisplay && !e.Hidden && e.Name != "" && e.Exec != ""
}

// ExecArgs splits Exec and drops field codes like %f and %U.
// The result has no files or URLs substituted.
func (e *Entry) ExecArgs() ([]string, error) {
	argv, err := desktop.SplitCommand(e.Exec)
	if err != nil {
		return nil, err
	}
	out := argv[:0]
	for _, arg := range argv {
		arg = expandFieldCodes(arg)
		if arg != "" {
			out = append(out, arg)
		}
	}
	if len(out) == 0 {
		return nil, desktop.ErrEmptyCommand
	}
	return out, nil
}

// Executable returns the base name of the program Exec runs
func (e *Entry) Executable() string {
	argv, err := e.ExecArgs()
	if err != nil {
		return ""
	}
	return filepath.Base(argv[0])
}

func expandFieldCodes(arg string) string {
	if !strings.Contains(arg, "%") {
		return arg
	}
	var b strings.Builder
	for i := 0; i < len(arg); i++ {
		if arg[i] != '%' || i == len(arg)-1 {
			b.WriteByte(arg[i])
			continue
		}
		i++
		if arg[i] == '%' {
			b.WriteByte('%')
		}
	}
	return b.String()
}

// ReadEntry parses the [Desktop Entry] group of a .desktop file
func ReadEntry(path string) (*Entry, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the configured application dirs
	if err != nil {
		return nil, err
	}
	defer f.Close()

	e, err := ParseEntry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e.Path = path
	return e, nil
}

// ParseEntry parses the [Desktop Entry] group. Localized keys are ignored.
func ParseEntry(r io.Reader) (*Entry, error) {
	e := &Entry{}
	inGroup := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inGroup = line == desktopEntryGroup
			continue
		}
		if !inGroup {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unescape(strings.TrimSpace(value))

		switch key {
		case "Type":
			e.Type = value
		case "Name":
			e.Name = value
		case "GenericName":
			e.GenericName = value
		case "Comment":
			e.Comment = value
		case "Keywords":
			e.Keywords = splitList(value)
		case "Exec":
			e.Exec = value
		case "Icon":
			e.Icon = value
		case "Terminal":
			e.Terminal = value == "true"
		case "NoDisplay":
			e.NoDisplay = value == "true"
		case "Hidden":
			e.Hidden = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read desktop entry: %w", err)
	}
	return e, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\s`, " ", `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`).Replace(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Scan reads every .desktop file below dirs. A file id found in a later
// directory replaces the same id from an earlier one. Missing dirs are skipped.
func Scan(dirs []string) ([]*Entry, error) {
	byID := make(map[string]*Entry)
	var order []string

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if path == dir && os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || filepath.Ext(path) != ".desktop" {
				return nil
			}

			e, err := ReadEntry(path)
			if err != nil {
				return nil
			}
			rel, _ := filepath.Rel(dir, path)
			e.ID = strings.ReplaceAll(filepath.ToSlash(rel), "/", "-")

			if _, seen := byID[e.ID]; !seen {
				order = append(order, e.ID)
			}
			byID[e.ID] = e
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	entries := make([]*Entry, 0, len(order))
	for _, id := range order {
		if e := byID[id]; e.Visible() {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
