package tui

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/igusev/launchq/internal/logger"
	"github.com/igusev/launchq/internal/query"
)

// fetchAhead is how close to the end of the list the cursor may get
// before the next generator batch is requested
const fetchAhead = 3

// Options configures the TUI
type Options struct {
	InitialQuery string
	ShowScores   bool
	Version      string
}

// ActivatedMsg is sent when an action finished running
type ActivatedMsg struct {
	Result query.Result
	Action string // Display text of the action that ran
	Hide   bool   // The action asked the frontend to close
	Err    error
}

// Model represents the TUI state
type Model struct {
	textInput   textinput.Model // Query input field
	styles      Styles          // Pre-configured styles
	colorScheme *ColorScheme    // Adaptive color scheme
	engine      *query.Engine
	bridge      *Bridge
	exec        *query.Execution // Execution whose results are shown
	results     []query.Result
	state       query.State
	lastInput   string
	version     string
	status      string // Outcome of the last action
	statusErr   bool
	activated   *query.Result // Result whose action closed the TUI
	cursor      int           // Current cursor position in results
	actionIdx   int           // Selected action of the item under the cursor
	width       int           // Terminal width
	height      int           // Terminal height
	quitting    bool
	showScores  bool // Whether to show extension and score per row
	showHelp    bool
	activating  bool // An action is running
}

// New creates a TUI over engine. The engine must deliver its events through bridge.
func New(engine *query.Engine, bridge *Bridge, opts Options) Model {
	colorScheme := NewColorScheme()
	styles := colorScheme.GetStyles()

	ti := textinput.New()
	ti.Placeholder = "Type to search..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50
	ti.Prompt = "> "
	ti.PromptStyle = styles.Prompt
	ti.SetValue(opts.InitialQuery)

	m := Model{
		textInput:   ti,
		styles:      styles,
		colorScheme: colorScheme,
		engine:      engine,
		bridge:      bridge,
		version:     opts.Version,
		showScores:  opts.ShowScores,
	}
	m.startQuery()
	return m
}

// Init initializes the model (required by tea.Model interface)
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.bridge.wait())
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m, m.activate()

		case "tab":
			m.complete()

		case "ctrl+o":
			// Cycle through the actions of the selected item
			if r, ok := m.selectedResult(); ok && len(r.Item.Actions) > 0 {
				m.actionIdx = (m.actionIdx + 1) % len(r.Item.Actions)
			}

		case "ctrl+s":
			m.showScores = !m.showScores

		case "f1":
			m.showHelp = !m.showHelp

		case "down", "ctrl+n":
			if m.cursor < len(m.results)-1 {
				m.cursor++
				m.actionIdx = 0
			}
			m.fetchMore()

		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
				m.actionIdx = 0
			}

		case "pgdown":
			m.cursor = min(m.cursor+m.listHeight(), max(len(m.results)-1, 0))
			m.actionIdx = 0
			m.fetchMore()

		case "pgup":
			m.cursor = max(m.cursor-m.listHeight(), 0)
			m.actionIdx = 0

		default:
			m.textInput, cmd = m.textInput.Update(msg)
			if m.textInput.Value() != m.lastInput {
				m.startQuery()
			}
		}

	case postedMsg:
		for _, ev := range m.bridge.take() {
			m.apply(ev)
		}
		return m, m.bridge.wait()

	case ActivatedMsg:
		m.activating = false
		if msg.Err != nil {
			logger.Debug("activation failed: %v", msg.Err)
			m.status = msg.Err.Error()
			m.statusErr = true
			return m, nil
		}
		m.status = fmt.Sprintf("%s: %s", msg.Action, msg.Result.Item.Text)
		m.statusErr = false
		if msg.Hide {
			m.activated = &msg.Result
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, cmd
}

// startQuery supersedes the running execution with the current input
func (m *Model) startQuery() {
	input := m.textInput.Value()
	m.lastInput = input
	m.exec = m.engine.StartQuery(input)
	m.results = nil
	m.state = m.exec.State()
	m.cursor = 0
	m.actionIdx = 0
	m.status = ""
}

// apply folds one engine event into the visible results
func (m *Model) apply(ev query.Event) {
	if ev.Execution != m.exec {
		return
	}
	switch ev.Kind {
	case query.EventAdded:
		m.results = append(m.results, ev.Items...)
	case query.EventReset:
		m.results = ev.Items
		m.cursor = 0
		m.actionIdx = 0
	case query.EventState:
		m.state = ev.State
	}
	if m.cursor >= len(m.results) {
		m.cursor = max(len(m.results)-1, 0)
	}
}

// fetchMore pulls the next generator batch when the cursor nears the end
func (m *Model) fetchMore() {
	if m.exec == nil || m.cursor < len(m.results)-fetchAhead {
		return
	}
	if m.exec.CanFetchMore() {
		m.exec.FetchMore()
	}
}

// complete replaces the input with the selected item's completion string
func (m *Model) complete() {
	r, ok := m.selectedResult()
	if !ok {
		return
	}
	completion := r.Item.CompletionString()
	if completion == m.textInput.Value() {
		return
	}
	m.textInput.SetValue(completion)
	m.textInput.CursorEnd()
	m.startQuery()
}

// activate runs the selected action off the UI goroutine
func (m *Model) activate() tea.Cmd {
	r, ok := m.selectedResult()
	if !ok || len(r.Item.Actions) == 0 || m.activating {
		return nil
	}
	action := r.Item.Actions[m.actionIdx%len(r.Item.Actions)]
	m.activating = true

	engine := m.engine
	return func() tea.Msg {
		err := engine.Activate(context.Background(), r, action.ID)
		return ActivatedMsg{Result: r, Action: action.Text, Hide: action.HideOnTrigger, Err: err}
	}
}

func (m Model) selectedResult() (query.Result, bool) {
	if m.cursor < 0 || m.cursor >= len(m.results) {
		return query.Result{}, false
	}
	return m.results[m.cursor], true
}

// Activated returns the result whose action closed the TUI, nil otherwise
func (m Model) Activated() *query.Result {
	return m.activated
}

// Results returns the visible results
func (m Model) Results() []query.Result {
	return m.results
}

// listHeight is the number of result rows that fit below the header
func (m Model) listHeight() int {
	usedLines := 6 // Title, separator, blank, input, two blanks
	if m.showHelp {
		usedLines += 3
	}
	if m.status != "" {
		usedLines += 2
	}
	return max(m.height-usedLines-1, 1)
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// Status indicator: ○ idle, ● running (green) or failed action (red)
	var statusIndicator string
	switch {
	case m.activating || (m.exec != nil && m.exec.IsActive()):
		statusIndicator = m.styles.StatusActive.Render("●")
	case m.statusErr:
		statusIndicator = m.styles.StatusError.Render("●")
	default:
		statusIndicator = m.styles.StatusIdle.Render("○")
	}

	titleLeft := fmt.Sprintf("%s %s %s",
		m.colorScheme.BrandMark,
		m.styles.Title.Render("launchq"),
		m.styles.Version.Render(m.version))

	var titleRight string
	count := formatCount(len(m.results), m.exec != nil && m.exec.CanFetchMore(), m.styles.Count, m.styles.CountActive)
	if m.exec != nil && m.exec.Triggered() {
		badge := m.styles.Trigger.Render("[" + m.exec.Handler().Name() + "]")
		titleRight = fmt.Sprintf("%s %s %s", badge, count, statusIndicator)
	} else {
		titleRight = fmt.Sprintf("%s %s", count, statusIndicator)
	}
	if m.width >= lipgloss.Width(titleLeft)+lipgloss.Width(titleRight)+20 {
		titleRight = m.styles.Help.Render("[F1] Help") + " " + titleRight
	}

	leftWidth := lipgloss.Width(titleLeft)
	rightWidth := lipgloss.Width(titleRight)
	spacing := " "
	if m.width > leftWidth+rightWidth {
		spacing = strings.Repeat(" ", m.width-leftWidth-rightWidth)
	}

	b.WriteString(titleLeft)
	b.WriteString(spacing)
	b.WriteString(titleRight)
	b.WriteString("\n")

	if m.width > 0 {
		b.WriteString(m.styles.Help.Render(strings.Repeat("─", m.width)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.textInput.View())
	if m.exec != nil {
		if synopsis := m.exec.Synopsis(); synopsis != "" {
			b.WriteString(" ")
			b.WriteString(m.styles.Synopsis.Render(synopsis))
		}
	}
	b.WriteString("\n\n")

	available := m.listHeight()
	start := 0
	if m.cursor >= available {
		start = m.cursor - available + 1
	}
	end := min(start+available, len(m.results))

	token := highlightToken(m.exec)
	for i := start; i < end; i++ {
		r := m.results[i]
		selected := i == m.cursor

		if selected {
			b.WriteString(m.styles.Cursor.Render("▌"))
		} else {
			b.WriteString(" ")
		}

		row := " " + renderResult(r, token, m.rowWidth(), m.showScores, m.styles, selected)
		if selected {
			if action := m.selectedActionText(r); action != "" {
				row += m.styles.Subtext.Render("  ↵ " + action)
			}
			b.WriteString(m.styles.Selected.Width(max(m.width-1, 0)).Render(row))
		} else {
			b.WriteString(m.styles.Normal.Render(row))
		}
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(m.styles.StatusError.Render(m.status))
		} else {
			b.WriteString(m.styles.Help.Render(m.status))
		}
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString("\n\n")
		b.WriteString(m.styles.Help.Render("↑/↓: navigate • enter: run action • ctrl+o: next action • tab: complete • ctrl+s: scores • F1: toggle help"))
	}

	return b.String()
}

// rowWidth is the width available for one result row
func (m Model) rowWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(m.width-3, 10) // Cursor and margin
}

func (m Model) selectedActionText(r query.Result) string {
	if len(r.Item.Actions) < 2 {
		return ""
	}
	return r.Item.Actions[m.actionIdx%len(r.Item.Actions)].Text
}

// highlightToken returns the first word of the text the handlers matched against
func highlightToken(x *query.Execution) string {
	if x == nil {
		return ""
	}
	fields := strings.Fields(x.String())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// renderResult renders "Text - Subtext" truncated to width, highlighting token in Text
func renderResult(r query.Result, token string, width int, showScores bool, styles Styles, selected bool) string {
	var suffix string
	if showScores {
		suffix = fmt.Sprintf(" [%s %.3f]", r.ExtensionID, r.Score)
	}
	width -= runewidth.StringWidth(suffix)

	text := runewidth.Truncate(r.Item.Text, max(width, 1), "…")
	var subtext string
	if r.Item.Subtext != "" {
		if rest := width - runewidth.StringWidth(text) - 3; rest > 1 {
			subtext = runewidth.Truncate(r.Item.Subtext, rest, "…")
		}
	}

	textStyle := styles.Normal
	if selected {
		textStyle = lipgloss.NewStyle()
	}

	var b strings.Builder
	b.WriteString(renderHighlight(text, token, textStyle, styles.Highlight))
	if subtext != "" {
		b.WriteString(styles.Subtext.Render(" - " + subtext))
	}
	if suffix != "" {
		b.WriteString(styles.Score.Render(suffix))
	}
	return b.String()
}

// renderHighlight highlights the first case-insensitive occurrence of token in text
func renderHighlight(text, token string, style, highlightStyle lipgloss.Style) string {
	if token == "" {
		return style.Render(text)
	}

	runes := []rune(text)
	needle := []rune(token)
	idx := indexFold(runes, needle)
	if idx < 0 {
		return style.Render(text)
	}

	before := string(runes[:idx])
	matched := string(runes[idx : idx+len(needle)])
	after := string(runes[idx+len(needle):])
	return style.Render(before) + highlightStyle.Render(matched) + style.Render(after)
}

// indexFold returns the rune index of needle in haystack ignoring case, or -1
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}

// formatCount renders the result count, with a + while more batches can be fetched
func formatCount(n int, more bool, countStyle, activeStyle lipgloss.Style) string {
	label := " results"
	if n == 1 {
		label = " result"
	}
	number := formatNumber(n)
	if more {
		number += "+"
	}
	return countStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, activeStyle.Render(number), label))
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
