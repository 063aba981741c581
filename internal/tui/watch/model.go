package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hooksink/internal/events"
)

type tickMsg time.Time

// Model is the BubbleTea model for the delivery tail.
type Model struct {
	baseURL string

	width  int
	height int

	connected bool
	health    healthMsg
	lastError string

	deliveries []events.Event // newest first
	lastEvent  int64

	view  viewport.Model
	theme Theme

	hubEvents chan events.Event
}

// New creates a watch model tailing the receiver at baseURL.
func New(baseURL string) *Model {
	return &Model{
		baseURL:   strings.TrimRight(baseURL, "/"),
		hubEvents: make(chan events.Event, 100),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.baseURL, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.baseURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = msg.Width - 6
		m.view.Height = msg.Height - 7
		m.view.SetContent(m.renderDeliveries())

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.deliveries = append([]events.Event{e}, m.deliveries...)
		if len(m.deliveries) > 200 {
			m.deliveries = m.deliveries[:200]
		}
		if e.ID > m.lastEvent {
			m.lastEvent = e.ID
		}
		m.connected = true
		m.lastError = ""
		m.view.SetContent(m.renderDeliveries())
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = msg
		m.connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// Resume from the last seen ID so nothing buffered is lost.
		return m, subscribeToEvents(m.baseURL, m.lastEvent, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	status := m.theme.Failed.Render("● offline")
	if m.connected {
		status = m.theme.OK.Render("● connected")
	}
	header := fmt.Sprintf("%s  %s  %s",
		m.theme.Title.Render("HOOKSINK WATCH"),
		status,
		m.theme.Dim.Render(fmt.Sprintf("received=%d uptime=%ds",
			m.health.ReceivedTotal, m.health.UptimeSeconds)),
	)

	body := m.theme.Border.Width(m.width - 4).Render(m.view.View())

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.Failed.Render(" ⚠ " + m.lastError)
	}

	help := m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll")

	parts := []string{header, body}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderDeliveries() string {
	if len(m.deliveries) == 0 {
		return m.theme.Dim.Render("  Waiting for deliveries...")
	}

	var lines []string
	for _, e := range m.deliveries {
		lines = append(lines, m.formatDelivery(e))
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatDelivery(e events.Event) string {
	ts := m.theme.Dim.Render(e.At.Format("15:04:05"))

	var d struct {
		Path    string          `json:"path"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = json.Unmarshal(e.Data, &d)

	path := m.theme.Highlight.Render(fmt.Sprintf("%-24s", d.Path))

	payload := string(d.Payload)
	if payload == "" {
		payload = string(e.Data)
	}
	if len(payload) > 80 {
		payload = payload[:80] + "..."
	}

	return fmt.Sprintf("%s %s %s", ts, path, payload)
}
