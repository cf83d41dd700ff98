// Package ssh offers the hosts of an ssh client config behind the "ssh " trigger
package ssh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/igusev/launchq/internal/desktop"
	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/match"
	"github.com/igusev/launchq/internal/model"
)

// ID is the extension id
const ID = "ssh"

// DefaultCommand is the client invoked with the host as last argument
const DefaultCommand = "ssh"

// Host is one concrete Host alias of an ssh config
type Host struct {
	Alias    string
	HostName string
	User     string
	Port     string
}

// Target returns "user@hostname:port" with the unset parts left out
func (h Host) Target() string {
	target := h.HostName
	if target == "" {
		target = h.Alias
	}
	if h.User != "" {
		target = h.User + "@" + target
	}
	if h.Port != "" && h.Port != "22" {
		target += ":" + h.Port
	}
	return target
}

// ReadConfig parses the hosts of an ssh config file. A missing file yields no hosts.
func ReadConfig(path string) ([]Host, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the configured ssh config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig returns every Host alias without wildcards or negation, in file order.
// HostName, User and Port apply to the aliases of the block they appear in.
func ParseConfig(r io.Reader) ([]Host, error) {
	var hosts []Host
	var block []int // indexes into hosts of the current Host block
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value := splitKeyword(line)
		switch strings.ToLower(key) {
		case "host":
			block = block[:0]
			for _, alias := range strings.Fields(value) {
				if strings.ContainsAny(alias, "*?!") || seen[alias] {
					continue
				}
				seen[alias] = true
				block = append(block, len(hosts))
				hosts = append(hosts, Host{Alias: alias})
			}
		case "match":
			block = block[:0]
		case "hostname":
			for _, i := range block {
				hosts[i].HostName = value
			}
		case "user":
			for _, i := range block {
				hosts[i].User = value
			}
		case "port":
			for _, i := range block {
				hosts[i].Port = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ssh config: %w", err)
	}
	return hosts, nil
}

// splitKeyword splits "Keyword value" and "Keyword=value"
func splitKeyword(line string) (string, string) {
	i := strings.IndexAny(line, " \t=")
	if i < 0 {
		return line, ""
	}
	value := strings.TrimLeft(line[i:], " \t=")
	return line[:i], strings.Trim(value, `"`)
}

// Handler lists hosts matching the query, best match first
type Handler struct {
	handler.Base

	path     string
	matchCfg match.Config
	command  string
	terminal []string
	launcher *desktop.Launcher
}

// Option configures a Handler
type Option func(*Handler)

// WithCommand replaces the ssh client command line, e.g. "mosh" or "ssh -A"
func WithCommand(command string) Option {
	return func(h *Handler) { h.command = command }
}

// WithTerminal sets the terminal wrapper, e.g. {"kitty", "-e"}. Empty runs the client directly.
func WithTerminal(argv ...string) Option {
	return func(h *Handler) { h.terminal = argv }
}

// WithLauncher replaces the process launcher
func WithLauncher(l *desktop.Launcher) Option {
	return func(h *Handler) { h.launcher = l }
}

// New creates the handler for the ssh config at path
func New(path string, matchCfg match.Config, opts ...Option) *Handler {
	h := &Handler{
		Base:     handler.NewBase(ID, "SSH", "Open ssh sessions to configured hosts"),
		path:     path,
		matchCfg: matchCfg,
		command:  DefaultCommand,
		terminal: []string{"x-terminal-emulator", "-e"},
		launcher: desktop.Default,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Synopsis is shown until a host is typed
func (h *Handler) Synopsis(string) string { return "<host>" }

// HandleTriggerQuery adds the matching hosts. A typed name that is not a
// configured alias is offered last as an ad hoc host.
func (h *Handler) HandleTriggerQuery(q handler.Query) error {
	hosts, err := ReadConfig(h.path)
	if err != nil {
		return err
	}

	input := strings.TrimSpace(q.String())
	trigger := q.Trigger()
	if trigger == "" {
		trigger = h.DefaultTrigger()
	}
	matcher := match.New(input, h.matchCfg)

	ranked := make([]model.RankItem, 0, len(hosts))
	known := false
	for _, host := range hosts {
		m := matcher.MatchAny(host.Alias, host.HostName)
		if !m.IsMatch() {
			continue
		}
		known = known || host.Alias == input
		ranked = append(ranked, model.RankItem{Item: h.item(host, trigger), Score: m.Score()})
	}
	if !q.IsValid() {
		return nil
	}

	if scorer := q.UsageScores(); scorer != nil {
		scorer.ModifyMatchScores(h.ID(), ranked)
	}
	handler.SortRankItems(ranked)

	items := make([]*model.Item, 0, len(ranked)+1)
	for _, ri := range ranked {
		items = append(items, ri.Item)
	}
	if input != "" && !known && !strings.ContainsAny(input, " \t") {
		items = append(items, h.item(Host{Alias: input}, trigger))
	}
	q.Add(items...)
	return nil
}

func (h *Handler) item(host Host, trigger string) *model.Item {
	return &model.Item{
		ID:              host.Alias,
		Text:            host.Alias,
		Subtext:         host.Target(),
		IconURLs:        []string{model.XDGIcon("network-server"), model.GeneratedIcon("", "", ">_", 0)},
		InputActionText: trigger + host.Alias,
		Actions: []model.Action{
			{
				ID:            "connect",
				Text:          "Connect",
				HideOnTrigger: true,
				Run:           func() error { return h.connect(host.Alias) },
			},
			{
				ID:   "copy",
				Text: "Copy ssh command",
				Run:  func() error { return h.launcher.Copy(h.command + " " + host.Alias) },
			},
		},
	}
}

// Command returns the argv that opens a session to alias
func (h *Handler) Command(alias string) ([]string, error) {
	client, err := desktop.SplitCommand(h.command)
	if err != nil {
		return nil, err
	}
	argv := slices.Concat(h.terminal, client, []string{alias})
	return argv, nil
}

func (h *Handler) connect(alias string) error {
	argv, err := h.Command(alias)
	if err != nil {
		return err
	}
	return h.launcher.Launch(argv)
}

var _ handler.TriggerHandler = (*Handler)(nil)
