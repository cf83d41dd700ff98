package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/igusev/launchq/internal/config"
	"github.com/igusev/launchq/internal/plugins/bookmarks"
	"github.com/igusev/launchq/internal/storage"
	"github.com/igusev/launchq/internal/usage"
)

type fakeApp struct {
	file, name, generic, comment, exec, keywords string
}

var apps = []fakeApp{
	{"firefox.desktop", "Firefox", "Web Browser", "Browse the World Wide Web", "firefox %u", "Internet;WWW;Browser;"},
	{"chromium.desktop", "Chromium", "Web Browser", "Access the Internet", "chromium %U", "browser;"},
	{"org.gnome.Terminal.desktop", "Terminal", "Terminal", "Use the command line", "gnome-terminal", "shell;prompt;command;"},
	{"org.gnome.Nautilus.desktop", "Files", "File Manager", "Access and organize files", "nautilus --new-window %U", "folder;explorer;"},
	{"code.desktop", "Visual Studio Code", "Text Editor", "Code Editing. Redefined.", "code %F", "vscode;editor;"},
	{"gimp.desktop", "GNU Image Manipulation Program", "Image Editor", "Create images and edit photographs", "gimp-2.10 %U", "photo;paint;"},
	{"libreoffice-writer.desktop", "LibreOffice Writer", "Word Processor", "Create and edit text documents", "libreoffice --writer %U", "document;text;"},
	{"org.gnome.Calculator.desktop", "Calculator", "Calculator", "Perform arithmetic calculations", "gnome-calculator", "math;"},
	{"thunderbird.desktop", "Thunderbird", "Mail Client", "Send and receive mail", "thunderbird %u", "email;"},
	{"vlc.desktop", "VLC media player", "Media Player", "Read, capture, broadcast your multimedia streams", "vlc --started-from-file %U", "player;video;"},
	{"spotify.desktop", "Spotify", "Music Player", "Music for every moment", "spotify %U", "music;"},
	{"slack.desktop", "Slack", "Chat", "Team communication", "slack %U", "chat;im;"},
}

var links = []bookmarks.Bookmark{
	{Name: "Go documentation", URL: "https://go.dev/doc/", Tags: []string{"golang", "docs"}},
	{Name: "Go package index", URL: "https://pkg.go.dev/", Tags: []string{"golang"}},
	{Name: "Bubble Tea", URL: "https://github.com/charmbracelet/bubbletea", Description: "TUI framework", Tags: []string{"tui"}},
	{Name: "Hacker News", URL: "https://news.ycombinator.com/"},
	{Name: "Team calendar", URL: "https://calendar.example.com/team", Tags: []string{"work"}},
	{Name: "CI dashboard", URL: "https://ci.example.com/", Description: "Build pipelines", Tags: []string{"work", "ci"}},
	{Name: "Grafana", URL: "https://grafana.example.com/", Tags: []string{"monitoring"}},
}

var notes = map[string]string{
	"groceries.md":          "# Groceries\n\n- milk\n- bread\n- coffee beans\n",
	"work/standup.md":       "# Standup\n\nYesterday: fixed the **launcher** ranking.\nToday: review the release checklist.\n",
	"work/release.md":       "# Release checklist\n\n1. Tag the version\n2. Build binaries\n3. Publish `CHANGELOG.md`\n",
	"ideas/launcher.md":     "# Launcher ideas\n\nRank by [frecency](https://en.wikipedia.org/wiki/Frecency) and fuzzy match.\n",
	"recipes/pancakes.md":   "# Pancakes\n\nFlour, eggs, milk. Rest the batter for 30 minutes.\n",
	"travel/packing.md":     "# Packing list\n\nPassport, charger, adapter, headphones.\n",
	"books/reading-list.md": "# Reading list\n\n- The Go Programming Language\n- Designing Data-Intensive Applications\n",
}

const sshConfig = `Host *
  ServerAliveInterval 60

Host db db-primary
  HostName db.internal.example.com
  User postgres

Host web-1 web-2
  HostName web.internal.example.com
  User deploy
  Port 2222

Host bastion
  HostName bastion.example.com

Host build
  HostName ci-runner.example.com
  User ci
`

var files = []string{
	"Documents/report-2025.pdf",
	"Documents/taxes/receipts.ods",
	"Documents/cv.odt",
	"Pictures/holiday/beach.jpg",
	"Pictures/holiday/mountains.jpg",
	"Projects/launchq/README.md",
	"Projects/launchq/go.mod",
	"Projects/website/index.html",
	"Music/playlist.m3u",
	"Downloads/installer.tar.gz",
}

var selections = []struct {
	extensionID string
	itemID      string
	count       int
	days        int
}{
	{"apps", "firefox.desktop", 25, 0},
	{"apps", "org.gnome.Terminal.desktop", 18, 0},
	{"apps", "code.desktop", 12, 1},
	{"bookmarks", "https://go.dev/doc/", 8, 1},
	{"ssh", "db", 6, 2},
	{"notes", "work/standup.md", 4, 2},
	{"apps", "slack.desktop", 3, 5},
	{"websearch", "DuckDuckGo", 2, 7},
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func writeFile(path, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fail("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		fail("Failed to write %s: %v", path, err)
	}
}

func desktopEntry(a fakeApp) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\nType=Application\n")
	fmt.Fprintf(&b, "Name=%s\nGenericName=%s\nComment=%s\nExec=%s\nKeywords=%s\n", a.name, a.generic, a.comment, a.exec, a.keywords)
	b.WriteString("Icon=" + strings.TrimSuffix(a.file, ".desktop") + "\n")
	return b.String()
}

func main() {
	// Create demo data directory in demo/data/launchq
	demoDir, err := filepath.Abs("demo/data/launchq")
	if err != nil {
		fail("Failed to resolve demo dir: %v", err)
	}
	if err := os.MkdirAll(demoDir, 0755); err != nil {
		fail("Failed to create demo dir: %v", err)
	}
	fmt.Printf("Generating fake data in: %s\n", demoDir)

	for _, a := range apps {
		writeFile(filepath.Join(demoDir, "applications", a.file), desktopEntry(a))
	}
	fmt.Printf("✓ Created desktop entries (%d apps)\n", len(apps))

	data, err := yaml.Marshal(links)
	if err != nil {
		fail("Failed to marshal bookmarks: %v", err)
	}
	writeFile(filepath.Join(demoDir, "bookmarks.yaml"), string(data))
	fmt.Printf("✓ Created bookmarks (%d links)\n", len(links))

	for name, body := range notes {
		writeFile(filepath.Join(demoDir, "notes", name), body)
	}
	fmt.Printf("✓ Created notes (%d files)\n", len(notes))

	writeFile(filepath.Join(demoDir, "ssh_config"), sshConfig)
	fmt.Printf("✓ Created ssh config\n")

	for _, f := range files {
		writeFile(filepath.Join(demoDir, "home", f), "")
	}
	fmt.Printf("✓ Created file tree (%d files)\n", len(files))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(demoDir, "data")
	cfg.Apps.Dirs = []string{filepath.Join(demoDir, "applications")}
	cfg.Bookmarks.File = filepath.Join(demoDir, "bookmarks.yaml")
	cfg.Notes.Dir = filepath.Join(demoDir, "notes")
	cfg.SSH.Config = filepath.Join(demoDir, "ssh_config")
	cfg.Files.Roots = []string{filepath.Join(demoDir, "home")}

	data, err = yaml.Marshal(cfg)
	if err != nil {
		fail("Failed to marshal config: %v", err)
	}
	configPath := filepath.Join(demoDir, "config.yaml")
	writeFile(configPath, string(data))
	fmt.Printf("✓ Created config\n")

	// Simulate usage history, oldest first
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		fail("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	log := store.ActivationLog()
	if err := log.Clear(ctx); err != nil {
		fail("Failed to reset usage history: %v", err)
	}

	now := time.Now()
	total := 0
	for i := len(selections) - 1; i >= 0; i-- {
		sel := selections[i]
		for n := 0; n < sel.count; n++ {
			at := now.Add(-time.Duration(sel.days)*24*time.Hour + time.Duration(n)*time.Minute)
			a := usage.Activation{ExtensionID: sel.extensionID, ItemID: sel.itemID, Time: at}
			if err := log.Append(ctx, a); err != nil {
				fail("Failed to record activation: %v", err)
			}
			total++
		}
	}
	fmt.Printf("✓ Created usage history (%d activations)\n", total)

	fmt.Printf("\n✅ Demo data generated successfully!\n\n")
	fmt.Printf("To use with launchq, run it from the demo directory:\n")
	fmt.Printf("  cd %s && launchq\n\n", demoDir)
	fmt.Printf("Demo config: %s\n", configPath)
}
