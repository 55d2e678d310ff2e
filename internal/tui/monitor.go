// Package tui provides the `quern watch` terminal monitor: live pool
// occupancy, session table, and recent request history over the HTTP API.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type poolStats struct {
	Active      int     `json:"active"`
	Queued      int     `json:"queued"`
	Max         int     `json:"max"`
	Utilization float64 `json:"utilization"`
}

type sessionStats struct {
	ActiveSessions int   `json:"active_sessions"`
	MaxSessions    int   `json:"max_sessions"`
	TotalCreated   int64 `json:"total_created"`
	TotalEvicted   int64 `json:"total_evicted"`
}

type statsPayload struct {
	Pool     poolStats     `json:"pool"`
	Sessions *sessionStats `json:"sessions,omitempty"`
	Uptime   int64         `json:"uptime_seconds"`
}

type historyRow struct {
	RequestID  string `json:"RequestID"`
	Operation  string `json:"Operation"`
	Action     string `json:"Action"`
	Status     string `json:"Status"`
	DurationMs int64  `json:"DurationMs"`
}

type statsMsg struct {
	stats   *statsPayload
	history []historyRow
	err     error
}

type tickMsg time.Time

// Model is the BubbleTea model for the watch monitor.
type Model struct {
	apiURL string
	apiKey string

	width   int
	height  int
	spinner spinner.Model

	stats     *statsPayload
	history   []historyRow
	lastError string
	fetchedAt time.Time
}

// New creates a watch monitor against the given API base URL.
func New(apiURL, apiKey string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetch(),
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
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(
			m.fetch(),
			tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case statsMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.lastError = ""
			m.stats = msg.stats
			m.history = msg.history
			m.fetchedAt = time.Now()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("quern watch"))
	b.WriteString(" " + m.spinner.View())
	b.WriteString("\n\n")

	if m.lastError != "" {
		b.WriteString(badStyle.Render("error: "+m.lastError) + "\n\n")
	}

	if m.stats == nil {
		b.WriteString(dimStyle.Render("waiting for stats..."))
		return docStyle.Render(b.String())
	}

	p := m.stats.Pool
	util := fmt.Sprintf("%.0f%%", p.Utilization*100)
	utilStyled := okStyle.Render(util)
	switch {
	case p.Utilization >= 1:
		utilStyled = badStyle.Render(util)
	case p.Utilization >= 0.75:
		utilStyled = warnStyle.Render(util)
	}

	poolBox := borderStyle.Render(fmt.Sprintf(
		"pool   active %d/%d   queued %d   utilization %s",
		p.Active, p.Max, p.Queued, utilStyled,
	))
	b.WriteString(poolBox + "\n")

	if s := m.stats.Sessions; s != nil {
		sessBox := borderStyle.Render(fmt.Sprintf(
			"sessions   live %d/%d   created %d   evicted %d",
			s.ActiveSessions, s.MaxSessions, s.TotalCreated, s.TotalEvicted,
		))
		b.WriteString(sessBox + "\n")
	}

	if len(m.history) > 0 {
		b.WriteString("\n" + titleStyle.Render("recent requests") + "\n")
		max := len(m.history)
		if max > 10 {
			max = 10
		}
		for _, row := range m.history[:max] {
			style := okStyle
			switch row.Status {
			case "failed":
				style = badStyle
			case "timed_out", "dropped":
				style = warnStyle
			}
			b.WriteString(fmt.Sprintf("  %-10s %s/%s %4dms %s\n",
				style.Render(row.Status), row.Operation, row.Action,
				row.DurationMs, dimStyle.Render(shortID(row.RequestID))))
		}
	}

	b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("updated %s | q to quit",
		m.fetchedAt.Format("15:04:05"))))
	return docStyle.Render(b.String())
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		stats := &statsPayload{}
		if err := m.getJSON("/v1/stats", stats); err != nil {
			return statsMsg{err: err}
		}
		var history []historyRow
		// History is optional; the journal may be disabled.
		_ = m.getJSON("/v1/history?limit=10", &history)
		return statsMsg{stats: stats, history: history}
	}
}

func (m Model) getJSON(path string, dst any) error {
	req, err := http.NewRequest(http.MethodGet, m.apiURL+path, nil)
	if err != nil {
		return err
	}
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
