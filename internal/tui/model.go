// Package tui is the operator console: a chat pane for driving test turns
// through the runtime plus live views over the event journal and sessions.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dashwise/router-runtime/internal/adminclient"
	"github.com/dashwise/router-runtime/internal/config"
)

type model struct {
	cfg        config.Config
	logger     *slog.Logger
	client     *adminclient.Client
	quitting   bool
	loading    bool
	mode       string
	sessionID  string
	input      textinput.Model
	statusText string
	errorText  string
	transcript []string
	events     []adminclient.RoutingEvent
	sessions   []adminclient.SessionSummary
}

const (
	modeChat     = "chat"
	modeEvents   = "events"
	modeSessions = "sessions"
)

const transcriptMaxLines = 40

func Run(cfg config.Config, logger *slog.Logger) error {
	program := tea.NewProgram(newModel(cfg, logger))
	_, err := program.Run()
	return err
}

func newModel(cfg config.Config, logger *slog.Logger) model {
	input := textinput.New()
	input.Placeholder = "open the links panel"
	input.CharLimit = 280
	input.Focus()
	return model{
		cfg:       cfg,
		logger:    logger,
		client:    adminclient.New(cfg),
		mode:      modeChat,
		sessionID: "console",
		input:     input,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case routeDoneMsg:
		m.loading = false
		if typed.err != nil {
			m.errorText = typed.err.Error()
			m.statusText = ""
			return m, nil
		}
		m.errorText = ""
		m.statusText = fmt.Sprintf("routed (tier %d, %s)", typed.response.Result.HandledByTier, typed.response.Result.TierLabel)
		m.transcript = appendTranscript(m.transcript, renderActions(typed.response)...)
		return m, nil
	case eventsLoadedMsg:
		m.loading = false
		if typed.err != nil {
			m.errorText = typed.err.Error()
			m.statusText = ""
			return m, nil
		}
		m.errorText = ""
		m.statusText = fmt.Sprintf("loaded %d event(s)", len(typed.items))
		m.events = typed.items
		return m, nil
	case sessionsLoadedMsg:
		m.loading = false
		if typed.err != nil {
			m.errorText = typed.err.Error()
			m.statusText = ""
			return m, nil
		}
		m.errorText = ""
		m.statusText = fmt.Sprintf("loaded %d session(s)", len(typed.items))
		m.sessions = typed.items
		return m, nil
	}

	switch typed := msg.(type) {
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			switch m.mode {
			case modeChat:
				m.mode = modeEvents
				m.statusText = "events mode"
				m.errorText = ""
				return m, m.listEventsCmd()
			case modeEvents:
				m.mode = modeSessions
				m.statusText = "sessions mode"
				m.errorText = ""
				return m, m.listSessionsCmd()
			default:
				m.mode = modeChat
				m.statusText = "chat mode"
				m.errorText = ""
				return m, nil
			}
		}

		if m.loading {
			return m, nil
		}

		if m.mode == modeChat {
			return m.handleChatKey(typed)
		}
		return m.handleListKey(typed)
	}

	return m, nil
}

func (m model) handleChatKey(typed tea.KeyMsg) (model, tea.Cmd) {
	if typed.String() == "enter" {
		input := strings.TrimSpace(m.input.Value())
		if input == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.loading = true
		m.statusText = "routing..."
		m.errorText = ""
		m.transcript = appendTranscript(m.transcript, "> "+input)
		return m, m.routeCmd(input)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(typed)
	return m, cmd
}

func (m model) handleListKey(typed tea.KeyMsg) (model, tea.Cmd) {
	switch typed.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "enter", "r":
		m.loading = true
		m.errorText = ""
		if m.mode == modeEvents {
			m.statusText = "loading events..."
			return m, m.listEventsCmd()
		}
		m.statusText = "loading sessions..."
		return m, m.listSessionsCmd()
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "router console closed\n"
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Render("router-runtime console")
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tabStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	activeTab := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

	tabs := []string{}
	for _, name := range []string{modeChat, modeEvents, modeSessions} {
		label := strings.ToUpper(name[:1]) + name[1:]
		if name == m.mode {
			tabs = append(tabs, activeTab.Render(label))
			continue
		}
		tabs = append(tabs, tabStyle.Render(label))
	}

	bodyLines := []string{
		"",
		fmt.Sprintf("Admin API: %s", m.cfg.AdminAPIURL),
		fmt.Sprintf("Session: %s", m.sessionID),
		fmt.Sprintf("Tabs: %s (Tab to switch)", strings.Join(tabs, " | ")),
		"",
	}

	switch m.mode {
	case modeEvents:
		if len(m.events) == 0 {
			bodyLines = append(bodyLines, "No events loaded.")
		} else {
			bodyLines = append(bodyLines, "Recent routing events:")
			for _, event := range m.events {
				bodyLines = append(bodyLines, fmt.Sprintf("  %s  %-12s %s",
					event.CreatedAt.Format("15:04:05"), event.SessionID, event.Action))
			}
		}
		bodyLines = append(bodyLines, "", "Controls: Enter/r=refresh, q=quit")
	case modeSessions:
		if len(m.sessions) == 0 {
			bodyLines = append(bodyLines, "No live sessions.")
		} else {
			bodyLines = append(bodyLines, "Live sessions:")
			for _, item := range m.sessions {
				line := fmt.Sprintf("  %-16s turns=%d pending=%d", item.ID, item.Turns, item.PendingOptions)
				if item.FocusedWidget != "" {
					line += " focus=" + item.FocusedWidget
				}
				bodyLines = append(bodyLines, line)
			}
		}
		bodyLines = append(bodyLines, "", "Controls: Enter/r=refresh, q=quit")
	default:
		if len(m.transcript) == 0 {
			bodyLines = append(bodyLines, "Type a command and press Enter to route it.")
		} else {
			bodyLines = append(bodyLines, m.transcript...)
		}
		bodyLines = append(bodyLines,
			"",
			m.input.View(),
			"",
			"Controls: Enter=route, ctrl+c=quit",
		)
	}

	if strings.TrimSpace(m.statusText) != "" {
		bodyLines = append(bodyLines, "", warnStyle.Render(m.statusText))
	}
	if strings.TrimSpace(m.errorText) != "" {
		bodyLines = append(bodyLines, "", errorStyle.Render(m.errorText))
	}

	return title + "\n" + strings.Join(bodyLines, "\n") + "\n"
}

type routeDoneMsg struct {
	response adminclient.TurnResponse
	err      error
}

type eventsLoadedMsg struct {
	items []adminclient.RoutingEvent
	err   error
}

type sessionsLoadedMsg struct {
	items []adminclient.SessionSummary
	err   error
}

func (m model) routeCmd(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		response, err := m.client.Route(ctx, adminclient.TurnRequest{SessionID: m.sessionID, Input: input})
		return routeDoneMsg{response: response, err: err}
	}
}

func (m model) listEventsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		items, err := m.client.ListEvents(ctx, "", 30)
		return eventsLoadedMsg{items: items, err: err}
	}
}

func (m model) listSessionsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		items, err := m.client.ListSessions(ctx)
		return sessionsLoadedMsg{items: items, err: err}
	}
}

func renderActions(response adminclient.TurnResponse) []string {
	if !response.Result.Handled && !response.Result.SemanticLanePending {
		return []string{"  (not handled, fell through the ladder)"}
	}
	if response.Result.SemanticLanePending {
		return []string{"  (deferred to the semantic answer lane)"}
	}
	var lines []string
	for _, action := range response.Actions {
		switch action.Kind {
		case "message":
			lines = append(lines, "  "+action.Text)
		case "open_panel":
			lines = append(lines, fmt.Sprintf("  [open panel] %s", action.WidgetLabel))
		case "select_option":
			if action.Option != nil {
				lines = append(lines, fmt.Sprintf("  [selected] %s", action.Option.Label))
			}
		case "show_options":
			lines = append(lines, "  "+action.Prompt)
			for index, option := range action.Options {
				lines = append(lines, fmt.Sprintf("    %d. %s", index+1, option.Label))
			}
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "  (handled, no visible actions)")
	}
	return lines
}

func appendTranscript(transcript []string, lines ...string) []string {
	transcript = append(transcript, lines...)
	if len(transcript) > transcriptMaxLines {
		transcript = transcript[len(transcript)-transcriptMaxLines:]
	}
	return transcript
}
