// Package llm makes sure a quantized model artifact is on disk and binds it to an
// OpenAI-compatible inference runtime.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

// artifactExt marks files in the model directory that can be served.
const artifactExt = ".bin"

// Provider loads the model once and hands out the cached Model afterwards.
type Provider struct {
	cfg        config.LLMConfig
	dir        string
	httpClient *http.Client
	opts       []option.RequestOption
	logger     *slog.Logger

	mu    sync.Mutex
	model *Model
}

// NewProvider creates a provider storing artifacts in dir. Extra request options are
// passed to the inference client.
func NewProvider(cfg config.LLMConfig, dir string, logger *slog.Logger, opts ...option.RequestOption) *Provider {
	return &Provider{
		cfg:        cfg,
		dir:        dir,
		httpClient: http.DefaultClient,
		opts:       opts,
		logger:     logging.Component(logger, "LanguageModel"),
	}
}

// Load returns the model, downloading the artifact first when the model directory
// holds no *.bin file.
func (p *Provider) Load(ctx context.Context) (*Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, nil
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.logger.Error("Error while loading model", "error", err)
		return nil, fmt.Errorf("%w: create model dir: %v", ErrModelUnavailable, err)
	}

	path, err := p.findArtifact()
	if err != nil {
		p.logger.Error("Error while loading model", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if path == "" {
		p.logger.Info("Downloading model...", "repo", p.cfg.Repo, "file", p.cfg.File)
		path, err = p.download(ctx)
		if err != nil {
			p.logger.Error("Error while downloading model", "error", err)
			return nil, fmt.Errorf("%w: download: %w", ErrModelUnavailable, err)
		}
	}

	p.logger.Info("Loading model...", "path", path)
	p.model = p.bind(path)
	p.logger.Info("Model loaded!", "model", p.model.Name())
	return p.model, nil
}

// findArtifact returns the lexicographically first *.bin file in the model dir, or "".
func (p *Provider) findArtifact() (string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return "", fmt.Errorf("read model dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), artifactExt) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(p.dir, names[0]), nil
}

func (p *Provider) bind(path string) *Model {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	opts := append([]option.RequestOption{
		option.WithBaseURL(p.cfg.BaseURL),
		option.WithAPIKey(apiKey),
	}, p.opts...)
	client := openai.NewClient(opts...)

	maxTokens := p.cfg.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Model{
		client:      &client,
		path:        path,
		name:        filepath.Base(path),
		maxTokens:   maxTokens,
		temperature: p.cfg.Temperature,
		logger:      p.logger,
	}
}
