package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mike-a-ellis/docubot/internal/docubot"
)

type chatState int

const (
	chatIdle chatState = iota
	chatWorking
)

type focus int

const (
	focusQuery focus = iota
	focusFile
)

const helpText = "Tab switches between the file and question fields. Enter asks.\n" +
	"Commands:\n  /clear  - clear the conversation\n  /exit   - quit\n  /help   - show this help"

type chatModel struct {
	ctx      context.Context
	bot      Chatbot
	viewport viewport.Model
	file     textinput.Model
	query    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	messages []chatMessage
	focus    focus
	state    chatState

	// ingested is the file already indexed in this session. It is only
	// ingested again when the path changes.
	ingested string

	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// turnMsg is sent when an ingest-then-ask round completes.
type turnMsg struct {
	ingested string
	answer   string
	err      error
}

func newChatModel(ctx context.Context, bot Chatbot, file string) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = focusedLabelStyle

	fi := textinput.New()
	fi.Placeholder = "path/to/document.pdf (.txt .doc .pdf .csv)"
	fi.CharLimit = 1024
	fi.SetValue(file)

	qi := textinput.New()
	qi.Placeholder = "Can you give me a brief summary of the document?"
	qi.CharLimit = 2000
	qi.Focus()

	return chatModel{
		ctx:     ctx,
		bot:     bot,
		spinner: sp,
		file:    fi,
		query:   qi,
		focus:   focusQuery,
		state:   chatIdle,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar + two labelled inputs.
	vpHeight := height - 5
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.file.Width = width - 12
	m.query.Width = width - 12

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

// runTurn ingests file when it differs from the one already indexed, then asks query.
func runTurn(ctx context.Context, bot Chatbot, file, ingested, query string) tea.Cmd {
	return func() tea.Msg {
		if file != "" && file != ingested {
			f, err := os.Open(file)
			if err != nil {
				return turnMsg{ingested: ingested, err: fmt.Errorf("open %s: %w", file, err)}
			}
			_, err = bot.Ingest(ctx, filepath.Base(file), f)
			f.Close()
			if err != nil {
				return turnMsg{ingested: ingested, err: err}
			}
			ingested = file
		}

		answer, err := bot.Ask(ctx, query)
		return turnMsg{ingested: ingested, answer: answer, err: err}
	}
}

func (m *chatModel) switchFocus() {
	if m.focus == focusQuery {
		m.focus = focusFile
		m.query.Blur()
		m.file.Focus()
		return
	}
	m.focus = focusQuery
	m.file.Blur()
	m.query.Focus()
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case turnMsg:
		m.state = chatIdle
		if msg.ingested != m.ingested && msg.ingested != "" {
			m.messages = append(m.messages, chatMessage{role: "system", content: "Indexed " + msg.ingested})
		}
		m.ingested = msg.ingested
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: docubot.UserMessage(msg.err)})
		} else {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: msg.answer})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.state != chatIdle {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyTab, tea.KeyShiftTab:
			m.switchFocus()
			return m, nil
		case tea.KeyEnter:
			question := strings.TrimSpace(m.query.Value())
			if question == "" {
				return m, nil
			}
			m.query.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/help":
				m.messages = append(m.messages, chatMessage{role: "system", content: helpText})
				m.refresh()
				return m, nil
			}

			m.messages = append(m.messages, chatMessage{role: "user", content: question})
			m.state = chatWorking
			m.refresh()

			file := strings.TrimSpace(m.file.Value())
			return m, tea.Batch(
				m.spinner.Tick,
				runTurn(m.ctx, m.bot, file, m.ingested, question),
			)
		}
	}

	if m.state == chatIdle {
		var cmd tea.Cmd
		if m.focus == focusFile {
			m.file, cmd = m.file.Update(msg)
		} else {
			m.query, cmd = m.query.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	if len(m.messages) == 0 && m.state == chatIdle {
		return dimStyle.Render("Choose a document, then ask a question about it.\n\n" + helpText)
	}

	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case "assistant":
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render(msg.content) + "\n\n")
		case "system":
			sb.WriteString(successStyle.Render(msg.content) + "\n\n")
		}
	}

	if m.state != chatIdle {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Thinking...") + "\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	if !m.initialized {
		return ""
	}

	status := "idle"
	if m.state != chatIdle {
		status = "working..."
	}
	doc := "no document"
	if m.ingested != "" {
		doc = filepath.Base(m.ingested)
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" docubot | %s | %s", doc, status))

	fileLabel, queryLabel := labelStyle, focusedLabelStyle
	if m.focus == focusFile {
		fileLabel, queryLabel = focusedLabelStyle, labelStyle
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		fileLabel.Render("File     ")+m.file.View(),
		queryLabel.Render("Question ")+m.query.View(),
	)
}
