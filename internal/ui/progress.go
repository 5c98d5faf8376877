// Package ui renders live plan progress in a terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"chunkplan/internal/crawl"
)

type progressModel struct {
	title   string
	events  <-chan crawl.Event
	spinner spinner.Model
	prog    progress.Model
	last    crawl.Event
	width   int
	done    bool
}

type eventMsg crawl.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders build progress
// until events is closed.
func NewProgressModel(title string, events <-chan crawl.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(crawl.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if label := m.last.Stage.String(); label != "" {
		header = fmt.Sprintf("%s (%s)", header, label)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  %s %d discovered, %d transformed\n",
		styleStage(m.last.Stage).Render(fmt.Sprintf("%10s", "modules")), m.last.Discovered, m.last.Transformed)
	if m.last.Module != "" {
		fmt.Fprintf(&b, "  %10s %s\n", "last", truncate(m.last.Module, m.width-14))
	}
	if m.last.Err != nil {
		b.WriteString("  " + styleStage(crawl.StageDone).Foreground(lipgloss.Color("1")).Render(m.last.Err.Error()) + "\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// applyEvent keeps crawl counters across later stages, which do not carry them.
func (m *progressModel) applyEvent(ev crawl.Event) tea.Cmd {
	if ev.Stage != crawl.StageCrawl {
		ev.Discovered = m.last.Discovered
		ev.Transformed = m.last.Transformed
	}
	m.last = ev
	return m.prog.SetPercent(fraction(ev))
}

// fraction maps a stage to overall completion. The crawl has no known total,
// so it stays at zero until assignment starts.
func fraction(ev crawl.Event) float64 {
	switch ev.Stage {
	case crawl.StageAssign:
		if ev.Total == 0 {
			return 0.5
		}
		return 0.1 + 0.8*float64(ev.Assigned)/float64(ev.Total)
	case crawl.StageSettle:
		return 0.05
	case crawl.StageFlush:
		return 0.9
	case crawl.StageDone:
		return 1
	default:
		return 0
	}
}

func styleStage(stage crawl.Stage) lipgloss.Style {
	switch stage {
	case crawl.StageDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case crawl.StageSettle:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return "..." + truncateLeft(value, width-3)
}

// truncateLeft keeps the last width cells, module paths differ at the end.
func truncateLeft(value string, width int) string {
	runes := []rune(value)
	w := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > width {
			break
		}
		w += rw
		i--
	}
	return string(runes[i:])
}
