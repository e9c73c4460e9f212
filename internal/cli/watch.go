package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/domain"
)

const defaultWatchInterval = 60 * time.Second

// refresher is the part of the valuation engine the watch view needs
type refresher interface {
	Refresh(ctx context.Context, s domain.Session) (*domain.PortfolioSnapshot, error)
}

// watchModel is a full screen dashboard that refreshes on a timer.
type watchModel struct {
	engine   refresher
	session  domain.Session
	theme    Theme
	interval time.Duration
	timeout  time.Duration

	// Data
	snapshot   *domain.PortfolioSnapshot
	err        error
	refreshing bool
	updatedAt  time.Time

	// UI state
	width  int
	height int
	ready  bool

	viewport viewport.Model
}

// Messages

type snapshotMsg struct {
	snapshot *domain.PortfolioSnapshot
	err      error
	at       time.Time
}

type refreshMsg struct{}

func newWatchModel(engine refresher, s domain.Session, t Theme, interval time.Duration, initial *domain.PortfolioSnapshot) watchModel {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return watchModel{
		engine:   engine,
		session:  s,
		theme:    t,
		interval: interval,
		timeout:  30 * time.Second,
		snapshot: initial,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.scheduleRefresh())
}

// Commands

func (m watchModel) fetch() tea.Cmd {
	engine, s, timeout := m.engine, m.session, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snapshot, err := engine.Refresh(ctx, s)
		return snapshotMsg{snapshot: snapshot, err: err, at: time.Now()}
	}
}

func (m watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport = viewport.New(m.width, m.height-1)
		m.ready = true

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			if !m.refreshing {
				m.refreshing = true
				cmds = append(cmds, m.fetch())
			}
		}

	case refreshMsg:
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.fetch())
		}
		cmds = append(cmds, m.scheduleRefresh())

	case snapshotMsg:
		m.refreshing = false
		m.err = msg.err
		if msg.err == nil {
			m.snapshot = msg.snapshot
			m.updatedAt = msg.at
		} else if domain.IsAuthError(msg.err) {
			return m, tea.Quit
		}
	}

	if m.ready {
		m.viewport.SetContent(RenderDashboard(m.theme, m.snapshot, "live"))
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m watchModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	return m.viewport.View() + "\n" + m.statusLine()
}

func (m watchModel) statusLine() string {
	t := m.theme
	muted := lipgloss.NewStyle().Foreground(t.Muted)

	parts := []string{keys.Refresh.Help().Key + " " + keys.Refresh.Help().Desc, keys.Quit.Help().Key + " " + keys.Quit.Help().Desc}
	switch {
	case m.refreshing:
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Info).Render("refreshing…"))
	case m.err != nil:
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Error).Render("refresh failed: "+m.err.Error()))
	case !m.updatedAt.IsZero():
		parts = append(parts, "updated "+m.updatedAt.Format("15:04:05"))
	}
	return muted.Render(strings.Join(parts, " · "))
}

// watchCmd holds the flags for the 'watch' subcommand.
type watchCmd struct {
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "live portfolio dashboard" }
func (*watchCmd) Usage() string {
	return `cryptovault watch [-interval 60s]

  Full screen dashboard refreshed on an interval. Press r to refresh now and
  q to quit.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", defaultWatchInterval, "refresh interval")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	s, ok := app.requireSession()
	if !ok {
		return subcommands.ExitFailure
	}

	cached, _ := app.Engine.LoadCachedSnapshot(ctx)
	m := newWatchModel(app.Engine, s, app.Theme, c.interval, cached)

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		fmt.Fprintf(app.Err, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if wm, ok := final.(watchModel); ok && domain.IsAuthError(wm.err) {
		return app.fail(ctx, "Refresh failed", wm.err)
	}
	return subcommands.ExitSuccess
}
