package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

// Model is a loaded artifact bound to the inference runtime.
type Model struct {
	client      *openai.Client
	path        string
	name        string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// Name is the artifact base name, used as the runtime model id.
func (m *Model) Name() string { return m.name }

// Path is where the artifact lives on disk.
func (m *Model) Path() string { return m.path }

// Generate completes prompt deterministically.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(m.name),
		MaxTokens:   openai.Int(int64(m.maxTokens)),
		Temperature: openai.Float(m.temperature),
	})
	if err != nil {
		m.logger.Error("Error while generating answer", "error", err)
		return "", fmt.Errorf("%w: chat completion failed: %v", ErrInferenceFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrInferenceFailed)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
