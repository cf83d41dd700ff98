// Package desktop starts processes, opens URLs and writes the clipboard on behalf of item actions
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/shlex"

	"github.com/igusev/launchq/internal/logger"
)

// Platform constants for runtime.GOOS
const (
	platformDarwin  = "darwin"
	platformLinux   = "linux"
	platformWindows = "windows"
)

// openTimeout bounds how long an opener like xdg-open may take to hand off
const openTimeout = 5 * time.Second

// ErrEmptyCommand is returned when a command line splits into nothing
var ErrEmptyCommand = errors.New("empty command")

// Runner executes cmd. Openers are waited for; launched programs are only started.
type Runner func(cmd *exec.Cmd, wait bool) error

// Launcher runs the side effects of item actions
type Launcher struct {
	run  Runner
	copy func(text string) error
}

// Option configures a Launcher
type Option func(*Launcher)

// WithRunner replaces process execution, e.g. with a recorder in tests
func WithRunner(r Runner) Option {
	return func(l *Launcher) { l.run = r }
}

// WithClipboard replaces clipboard writes
func WithClipboard(fn func(text string) error) Option {
	return func(l *Launcher) { l.copy = fn }
}

// New creates a launcher backed by the real system unless overridden
func New(opts ...Option) *Launcher {
	l := &Launcher{run: runCommand, copy: clipboard.WriteAll}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default is the launcher used by first-party handlers
var Default = New()

func runCommand(cmd *exec.Cmd, wait bool) error {
	if wait {
		// Use Run() so the opener actually hands off before we return
		return cmd.Run()
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Detach: the launched program outlives the launcher
	return cmd.Process.Release()
}

// OpenCommand returns the argv that opens url with the platform's default handler
func OpenCommand(goos, url string) ([]string, error) {
	switch goos {
	case platformDarwin:
		return []string{"open", url}, nil
	case platformLinux:
		return []string{"xdg-open", url}, nil
	case platformWindows:
		// Empty string before URL is important: start interprets first quoted arg as window title
		return []string{"cmd", "/c", "start", "", url}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Open opens url (or a file path) in the default application
func (l *Launcher) Open(url string) error {
	argv, err := OpenCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	logger.Debug("Opening %s", url)
	if err := l.run(exec.CommandContext(ctx, argv[0], argv[1:]...), true); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// Launch starts argv as a detached process
func (l *Launcher) Launch(argv []string) error {
	if len(argv) == 0 {
		return ErrEmptyCommand
	}
	logger.Debug("Launching %q", argv)
	//nolint:gosec // G204: argv comes from the user's own desktop entries and ssh config
	if err := l.run(exec.Command(argv[0], argv[1:]...), false); err != nil {
		return fmt.Errorf("failed to launch %s: %w", argv[0], err)
	}
	return nil
}

// LaunchLine splits a command line with POSIX shell rules and launches it
func (l *Launcher) LaunchLine(line string) error {
	argv, err := SplitCommand(line)
	if err != nil {
		return err
	}
	return l.Launch(argv)
}

// Copy writes text to the system clipboard
func (l *Launcher) Copy(text string) error {
	if err := l.copy(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// SplitCommand splits a command line with POSIX shell quoting, no shell involved
func SplitCommand(line string) ([]string, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("splitting command: %w", err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}
