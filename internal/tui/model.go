package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdf-rag/internal/models"
)

// Session is the TUI-facing subset of a RAG session.
type Session interface {
	Ingest(ctx context.Context, name string, data []byte) (*models.ProcessingStats, error)
	Ask(ctx context.Context, question string) (*models.Turn, error)
	History() []models.Turn
	ClearHistory()
	Reset(ctx context.Context) error
}

// Both results carry a history snapshot taken off the UI goroutine, so
// Update never waits on the session.
type answerMsg struct {
	turn    *models.Turn
	history []models.Turn
	err     error
}

type processedMsg struct {
	stats   *models.ProcessingStats
	history []models.Turn
	err     error
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctx      context.Context
	session  Session
	fileName string
	data     []byte
	timeout  time.Duration

	input    textinput.Model
	viewport viewport.Model
	turns    []models.Turn
	spinner  string
	status   string
	summary  string
	busy     bool
	ready    bool
	// ctrl+l pressed while busy; applied once the pending result arrives
	clearQueued bool
}

// New creates a chat screen over a session whose document is fileName.
func New(ctx context.Context, session Session, fileName string, data []byte, stats *models.ProcessingStats) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		session:  session,
		fileName: fileName,
		data:     data,
		timeout:  2 * time.Minute,
		input:    ti,
		viewport: viewport.New(0, 0),
		turns:    session.History(),
		summary:  summarize(stats),
		status:   "Ready. ctrl+l clears history, ctrl+r reprocesses, ctrl+c quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		m.turns = msg.history
		m.applyQueuedClear()
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered with %s in %s", msg.turn.Model, msg.turn.Duration.Round(time.Millisecond))
		}
		m.refresh()
		return m, nil

	case processedMsg:
		m.busy = false
		m.turns = msg.history
		m.applyQueuedClear()
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.summary = summarize(msg.stats)
			m.status = "Document reprocessed."
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlL:
			if m.busy {
				m.clearQueued = true
				m.status = "History will be cleared once the current request finishes."
				return m, nil
			}
			m.session.ClearHistory()
			m.turns = nil
			m.status = "Chat history cleared."
			m.refresh()
			return m, nil
		case tea.KeyCtrlR:
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Reprocessing " + m.fileName + "..."
			return m, m.reprocess()
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.Reset()
			m.status = "Thinking..."
			m.spinner = q
			m.refresh()
			return m, m.ask(q)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		defer cancel()
		turn, err := m.session.Ask(ctx, q)
		return answerMsg{turn: turn, history: m.session.History(), err: err}
	}
}

func (m Model) reprocess() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		defer cancel()
		if err := m.session.Reset(ctx); err != nil {
			return processedMsg{history: m.session.History(), err: err}
		}
		stats, err := m.session.Ingest(ctx, m.fileName, m.data)
		return processedMsg{stats: stats, history: m.session.History(), err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Chat with " + m.fileName)
	summary := summaryStyle.Render(m.summary)
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + history + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	var pending string
	if m.busy && m.spinner != "" {
		pending = m.spinner
	}
	m.viewport.SetContent(renderHistory(m.turns, pending, m.viewport.Width))
	m.viewport.GotoBottom()
	if !m.busy {
		m.spinner = ""
	}
}

func (m *Model) applyQueuedClear() {
	if !m.clearQueued {
		return
	}
	m.clearQueued = false
	m.session.ClearHistory()
	m.turns = nil
}

// renderHistory lays the turns out oldest first; pending is a question still
// waiting for its answer.
func renderHistory(turns []models.Turn, pending string, width int) string {
	if len(turns) == 0 && pending == "" {
		return "No questions yet."
	}
	wrap := lipgloss.NewStyle().Width(max(10, width-4))
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(userStyle.Render("You: "))
		b.WriteString(wrap.Render(t.Question))
		b.WriteString("\n")
		b.WriteString(assistantStyle.Render("Assistant: "))
		b.WriteString(wrap.Render(t.Answer))
		b.WriteString("\n")
		b.WriteString(summaryStyle.Render(fmt.Sprintf("%s · %s · %d sources", t.Timestamp.Format("15:04:05"), t.Model, len(t.Sources))))
		b.WriteString("\n\n")
	}
	if pending != "" {
		b.WriteString(userStyle.Render("You: "))
		b.WriteString(wrap.Render(pending))
		b.WriteString("\n")
	}
	return b.String()
}

func summarize(stats *models.ProcessingStats) string {
	if stats == nil {
		return ""
	}
	return fmt.Sprintf("%d pages, %d chunks (size %d, overlap %d), processed in %s",
		stats.Pages, stats.Chunks, stats.ChunkSize, stats.ChunkOverlap, stats.Duration.Round(time.Millisecond))
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
