package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-chat/internal/chat"
	"document-chat/internal/helper"
	"document-chat/internal/models"
	"document-chat/internal/parser"
)

// ChatPort is the TUI-facing subset of the chat service
type ChatPort interface {
	Models() []string
	Ask(ctx context.Context, sess *chat.Session, modelID, question string) (*models.PromptResponse, error)
	Upload(ctx context.Context, sess *chat.Session, files []chat.File) (*chat.UploadReport, error)
}

type answerMsg struct {
	session chat.Session
	resp    *models.PromptResponse
	err     error
}

type uploadMsg struct {
	session chat.Session
	report  *chat.UploadReport
	err     error
}

// Model is the Bubble Tea model of the chat screen
type Model struct {
	ctx      context.Context
	service  ChatPort
	session  chat.Session
	input    textinput.Model
	viewport viewport.Model
	status   string
	busy     bool
	ready    bool
}

func New(ctx context.Context, service ChatPort, sess chat.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents, " + addCommand + " <path> to upload " + strings.Join(parser.SupportedExtensions(), " ")
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		service:  service,
		session:  sess,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Model: " + sess.Model + " (tab to switch)",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, hh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		// header, status and the input line
		reserved := 3 + ih
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-hh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.session = msg.session
		m.status = fmt.Sprintf("Answered by %s from %d sources", msg.resp.Model, len(msg.resp.Sources))
		m.refresh()
		return m, nil

	case uploadMsg:
		m.busy = false
		m.status = uploadStatus(msg.report, msg.err)
		if msg.err == nil {
			m.session = msg.session
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyTab:
			m.session.Model = nextModel(m.service.Models(), m.session.Model)
			m.status = "Model: " + m.session.Model
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			if text == addCommand || strings.HasPrefix(text, addCommand+" ") {
				patterns := strings.Fields(strings.TrimPrefix(text, addCommand))
				if len(patterns) == 0 {
					m.status = addUsage()
					return m, nil
				}
				m.busy = true
				m.status = "Indexing..."
				return m, m.upload(patterns)
			}
			m.busy = true
			m.status = "Thinking..."
			return m, m.ask(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

const addCommand = "/add"

func addUsage() string {
	return "Usage: " + addCommand + " <path|glob>... (" + strings.Join(parser.SupportedExtensions(), ", ") + ")"
}

// ask runs on a copy of the session so View never races the service
func (m Model) ask(question string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		resp, err := m.service.Ask(m.ctx, &sess, sess.Model, question)
		return answerMsg{session: sess, resp: resp, err: err}
	}
}

func (m Model) upload(patterns []string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		paths, err := helper.ExpandPaths(patterns)
		if err != nil {
			return uploadMsg{err: err}
		}
		files := make([]chat.File, 0, len(paths))
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return uploadMsg{err: err}
			}
			files = append(files, chat.File{Name: filepath.Base(p), Data: data})
		}
		report, err := m.service.Upload(m.ctx, &sess, files)
		return uploadMsg{session: sess, report: report, err: err}
	}
}

func uploadStatus(report *chat.UploadReport, err error) string {
	if err != nil {
		return "Upload failed: " + err.Error()
	}
	var failed []string
	for _, f := range report.Files {
		if f.Error != "" {
			failed = append(failed, f.Name)
		}
	}
	status := fmt.Sprintf("Added %d chunks from %d files", report.Added, len(report.Files)-len(failed))
	if len(failed) > 0 {
		status += ", skipped " + strings.Join(failed, ", ")
	}
	return status
}

func nextModel(catalog []string, current string) string {
	if len(catalog) == 0 {
		return current
	}
	for i, id := range catalog {
		if id == current {
			return catalog[(i+1)%len(catalog)]
		}
	}
	return catalog[0]
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	turns := m.session.History.Messages()
	if len(turns) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, t := range turns {
		if t.Role == models.RoleUser {
			b.WriteString(userStyle.Render("You: ") + t.Content + "\n\n")
		} else {
			b.WriteString(assistantStyle.Render("Assistant: ") + t.Content + "\n\n")
		}
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Chat")
	history := historyBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + history + "\n" + input + "\n" + status
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Run starts the chat screen and blocks until the user quits
func Run(ctx context.Context, service ChatPort, sess chat.Session) error {
	_, err := tea.NewProgram(New(ctx, service, sess), tea.WithAltScreen()).Run()
	return err
}
