// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mike-a-ellis/docubot/internal/indexer"
)

// Chatbot is the part of the chatbot service the chat screen uses.
type Chatbot interface {
	Ingest(ctx context.Context, name string, r io.Reader) (*indexer.IngestResult, error)
	Ask(ctx context.Context, query string) (string, error)
}

// Model is the top-level Bubble Tea model.
type Model struct {
	chat chatModel
}

// New creates the chat model. file pre-fills the document field.
func New(ctx context.Context, bot Chatbot, file string) Model {
	return Model{chat: newChatModel(ctx, bot, file)}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.chat, cmd = m.chat.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.chat.View()
}

// Run starts the TUI program and blocks until the user quits.
func Run(ctx context.Context, bot Chatbot, file string) error {
	p := tea.NewProgram(New(ctx, bot, file), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
