package dashboardcmder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/tracenotes/pkg/aggregate"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

// source is the read side the dashboard needs. *query.Service satisfies it.
type source interface {
	Summarize(ctx context.Context, from, to string) (aggregate.Report, error)
	Analyze(ctx context.Context, revision string) (*attribution.CommitAttribution, error)
}

type dashView int

const (
	viewCommits dashView = iota
	viewCommit
)

const barWidth = 20

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	metricLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	metricValue    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	aiBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type dashKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Back   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

func (k dashKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Enter, k.Back, k.Reload, k.Quit}
}

func (k dashKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Down, k.Up, k.Enter, k.Back}, {k.Reload, k.Quit}}
}

func defaultKeyMap() dashKeyMap {
	return dashKeyMap{
		Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Enter:  key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "drill")),
		Back:   key.NewBinding(key.WithKeys("h", "esc"), key.WithHelp("h", "back")),
		Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type reportLoadedMsg struct {
	report aggregate.Report
	err    error
}

type attributionLoadedMsg struct {
	attribution *attribution.CommitAttribution
	err         error
}

type dashModel struct {
	ctx      context.Context
	source   source
	from, to string

	report aggregate.Report
	detail *attribution.CommitAttribution
	err    error

	view   dashView
	cursor int
	width  int

	keys dashKeyMap
	help help.Model
}

func runDashboardTUI(ctx context.Context, src source, from, to string) error {
	report, err := src.Summarize(ctx, from, to)
	if err != nil {
		return err
	}

	program := bubbletea.NewProgram(newDashModel(ctx, src, from, to, report),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err = program.Run()
	return err
}

func newDashModel(ctx context.Context, src source, from, to string, report aggregate.Report) dashModel {
	return dashModel{
		ctx:    ctx,
		source: src,
		from:   from,
		to:     to,
		report: report,
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
}

func (m dashModel) Init() bubbletea.Cmd {
	return nil
}

func (m dashModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case reportLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.report = msg.report
			m.cursor = clamp(m.cursor, len(m.report.Commits)-1)
		}
		return m, nil

	case attributionLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.detail = msg.attribution
			m.view = viewCommit
		}
		return m, nil

	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m dashModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Down):
		if m.view == viewCommits {
			m.cursor = clamp(m.cursor+1, len(m.report.Commits)-1)
		}

	case key.Matches(msg, m.keys.Up):
		if m.view == viewCommits {
			m.cursor = clamp(m.cursor-1, len(m.report.Commits)-1)
		}

	case key.Matches(msg, m.keys.Enter):
		if m.view == viewCommits && len(m.report.Commits) > 0 {
			return m, m.loadAttribution(m.report.Commits[m.cursor].Revision)
		}

	case key.Matches(msg, m.keys.Back):
		if m.view == viewCommit {
			m.view = viewCommits
			m.detail = nil
		}

	case key.Matches(msg, m.keys.Reload):
		if m.view == viewCommits {
			return m, m.loadReport()
		}
		if m.detail != nil {
			return m, m.loadAttribution(m.detail.Revision)
		}
	}

	return m, nil
}

func (m dashModel) loadReport() bubbletea.Cmd {
	return func() bubbletea.Msg {
		report, err := m.source.Summarize(m.ctx, m.from, m.to)
		return reportLoadedMsg{report: report, err: err}
	}
}

func (m dashModel) loadAttribution(revision string) bubbletea.Cmd {
	return func() bubbletea.Msg {
		a, err := m.source.Analyze(m.ctx, revision)
		return attributionLoadedMsg{attribution: a, err: err}
	}
}

func (m dashModel) View() string {
	var b strings.Builder
	if m.view == viewCommit && m.detail != nil {
		m.viewCommit(&b)
	} else {
		m.viewCommits(&b)
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render(m.help.View(m.keys)) + "\n")
	return b.String()
}

func (m dashModel) viewCommits(b *strings.Builder) {
	span := m.to
	if span == "" {
		span = "HEAD"
	}
	if m.from != "" {
		span = m.from + ".." + span
	}
	b.WriteString(titleStyle.Render("tracenotes") + "  " + mutedStyle.Render(span) + "\n\n")

	t := m.report.Total
	b.WriteString(renderMetric("commits", len(m.report.Commits)) +
		renderMetric("records", t.TotalRecords) +
		renderMetric("files", t.DistinctFiles) +
		renderMetric("ai share", formatPercent(t.AIShare())) + "\n")

	if models := t.SortedModels(); len(models) > 0 {
		names := make([]string, 0, len(models))
		for _, c := range models {
			names = append(names, fmt.Sprintf("%s (%d)", c.Name, c.Count))
		}
		b.WriteString(metricLabel.Render("models ") + metricValue.Render(strings.Join(names, ", ")) + "\n")
	}
	b.WriteString("\n" + sectionStyle.Render("Commits") + "\n")

	if len(m.report.Commits) == 0 {
		b.WriteString(mutedStyle.Render("  no noted commits in range") + "\n")
		return
	}

	for i, c := range m.report.Commits {
		share := c.Stats.AIShare()
		line := fmt.Sprintf("%s  %s %6s  %3d records  %3d files",
			utils.ShortSHA(c.Revision),
			renderBar(share, barWidth),
			formatPercent(share),
			c.Stats.TotalRecords,
			c.Stats.DistinctFiles,
		)
		if i == m.cursor {
			b.WriteString("> " + highlightStyle.Render(line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
}

func (m dashModel) viewCommit(b *strings.Builder) {
	a := m.detail
	b.WriteString(titleStyle.Render("commit "+utils.ShortSHA(a.Revision)) + "\n\n")

	lines := a.ContributorLines()
	kinds := make([]string, 0, len(lines))
	for k := range lines {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		b.WriteString(renderMetric(k+" lines", lines[k]))
	}
	if len(kinds) > 0 {
		b.WriteString("\n")
	}

	if len(a.Files) == 0 {
		b.WriteString(mutedStyle.Render("  no recorded attribution survives in this commit") + "\n")
	}
	for _, f := range a.Files {
		b.WriteString("\n" + sectionStyle.Render(f.Path) + "\n")
		for _, r := range f.Ranges {
			who := r.ContributorType
			if r.ModelID != "" {
				who += " " + r.ModelID
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render(fmt.Sprintf("%5d-%-5d", r.StartLine, r.EndLine)), who))
		}
	}

	if len(a.Untracked) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Untracked") + "\n")
		for _, p := range a.Untracked {
			b.WriteString("  " + mutedStyle.Render(p) + "\n")
		}
	}
}

func renderMetric(label string, value any) string {
	return metricLabel.Render(label+" ") + metricValue.Render(fmt.Sprint(value)) + "   "
}

func renderBar(share float64, width int) string {
	filled := int(share*float64(width) + 0.5)
	filled = max(0, min(filled, width))
	return aiBarStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

func clamp(value, upper int) int {
	if upper < 0 {
		return 0
	}
	return max(0, min(value, upper))
}
