package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

// DefaultK is how many chunks are stuffed into the prompt.
const DefaultK = 1

var ErrChainIncomplete = errors.New("qa chain is missing a collaborator")

const promptTemplate = `
You are a helpful, respectful and honest assistant. Use the following pieces of context to answer the user's question. Please follow the following rules:
1. When answering the question, please use only the information presented in the context and avoid making any claims that are not directly supported by the context.
2. Your answers should not include any harmful, unethical, racist, sexist, toxic, dangerous, or illegal content. Please ensure that your responses are socially unbiased and positive in nature.
3. When answering the question, prioritize providing specific details or quotes from the context to support your answer. If the answer cannot be found in the context, inform the user that the information is not available.
4. Always say "thanks for asking!" at the end of the answer. 


Context: {context}
Question: {question}

Only return the helpful answer below and nothing else.
Helpful Answer:
`

// PromptTemplate renders a prompt from the {context} and {question} variables.
type PromptTemplate struct {
	Template       string
	InputVariables []string
}

// PreparePrompt returns the answer prompt.
func PreparePrompt() PromptTemplate {
	return PromptTemplate{
		Template:       promptTemplate,
		InputVariables: []string{"context", "question"},
	}
}

// Format substitutes both variables in a single pass, so braces inside the context or
// question are left alone.
func (p PromptTemplate) Format(contextText, question string) string {
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(p.Template)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]document.Document, error)
}

// Result is the answer to one query.
type Result struct {
	Result string `json:"result"`
}

// QAChain stuffs every retrieved chunk into one prompt and asks the generator once.
// Source documents are not returned.
type QAChain struct {
	prompt    PromptTemplate
	generator Generator
	retriever Retriever
	logger    *slog.Logger
}

// NewQAChain wires the chain. A nil generator or retriever, or an empty template,
// returns ErrChainIncomplete.
func NewQAChain(prompt PromptTemplate, generator Generator, retriever Retriever, logger *slog.Logger) (*QAChain, error) {
	switch {
	case prompt.Template == "":
		return nil, fmt.Errorf("%w: empty prompt template", ErrChainIncomplete)
	case generator == nil:
		return nil, fmt.Errorf("%w: no language model", ErrChainIncomplete)
	case retriever == nil:
		return nil, fmt.Errorf("%w: no retriever", ErrChainIncomplete)
	}
	logger = logging.Component(logger, "QAChain")
	logger.Info("QA chain created!")
	return &QAChain{prompt: prompt, generator: generator, retriever: retriever, logger: logger}, nil
}

// SearchResult answers query from the retrieved context.
func (c *QAChain) SearchResult(ctx context.Context, query string) (Result, error) {
	c.logger.Info("Searching answer...")

	docs, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		c.logger.Error("Error while resolving query", "error", err)
		return Result{}, fmt.Errorf("retrieve context: %w", err)
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.PageContent
	}

	answer, err := c.generator.Generate(ctx, c.prompt.Format(strings.Join(contents, "\n\n"), query))
	if err != nil {
		c.logger.Error("Error while resolving query", "error", err)
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	c.logger.Info("Query resolved!", "chunks", len(docs))
	return Result{Result: answer}, nil
}
