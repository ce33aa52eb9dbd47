// Package config loads docubot configuration from defaults, an optional YAML file and
// the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Vector index backends.
const (
	BackendQdrant = "qdrant"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Deployment specs for a newly created index.
const (
	DeploymentPod        = "pod"
	DeploymentServerless = "serverless"
)

// Config is the root application configuration.
type Config struct {
	Home      string          `yaml:"home"`
	LogLevel  string          `yaml:"log_level"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
}

// IndexConfig configures the vector store gateway.
type IndexConfig struct {
	Backend     string `yaml:"backend"`
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	UseTLS      bool   `yaml:"use_tls"`
	Shards      int    `yaml:"shards"`
	Replicas    int    `yaml:"replicas"`
	// ReadyAttempts bounds the 1 s readiness poll after connect.
	ReadyAttempts int    `yaml:"ready_attempts"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// EmbeddingConfig configures the OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig configures the model artifact and the inference runtime it is served by.
type LLMConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Repo         string  `yaml:"repo"`
	File         string  `yaml:"file"`
	HubURL       string  `yaml:"hub_url"`
	MaxNewTokens int     `yaml:"max_new_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// ServerConfig configures the HTTP presentation layer.
type ServerConfig struct {
	Port       string `yaml:"port"`
	ServerMode bool   `yaml:"server_mode"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Home:     ".",
		LogLevel: "info",
		Index: IndexConfig{
			Backend:       BackendQdrant,
			Name:          "docubot",
			Environment:   DeploymentPod,
			Host:          "localhost",
			Port:          6334,
			Shards:        1,
			Replicas:      1,
			ReadyAttempts: 60,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			BatchSize: 500,
		},
		LLM: LLMConfig{
			BaseURL:      "http://localhost:8000/v1",
			Repo:         "TheBloke/Llama-2-7B-Chat-GGML",
			File:         "llama-2-7b-chat.ggmlv3.q2_K.bin",
			HubURL:       "https://huggingface.co",
			MaxNewTokens: 512,
			Temperature:  0,
		},
		Server: ServerConfig{
			Port: "8082",
		},
	}
}

// Load builds the configuration. path may be empty, in which case DOCUBOT_CONFIG is
// consulted; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("DOCUBOT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendQdrant, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown vector backend %q", c.Index.Backend)
	}
	switch c.Index.Environment {
	case DeploymentPod, DeploymentServerless:
	default:
		return fmt.Errorf("unknown index environment %q", c.Index.Environment)
	}
	if c.Index.Name == "" {
		return errors.New("index name is required")
	}
	if c.Index.ReadyAttempts <= 0 {
		return errors.New("index ready attempts must be positive")
	}
	return nil
}

// ModelDir is where language model artifacts are stored.
func (c *Config) ModelDir() string { return filepath.Join(c.Home, "model") }

// LogDir is the root of the per-component log files.
func (c *Config) LogDir() string { return filepath.Join(c.Home, "logs") }

// DocumentsDir holds every uploaded document.
func (c *Config) DocumentsDir() string { return filepath.Join(c.Home, "documents") }

// SQLitePath returns the sqlite-vec database file, defaulting under Home.
func (c *Config) SQLitePath() string {
	if c.Index.SQLitePath != "" {
		return c.Index.SQLitePath
	}
	return filepath.Join(c.Home, "index.db")
}

func applyEnv(cfg *Config) {
	cfg.Home = getEnv("DOCUBOT_HOME", cfg.Home)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Index.Backend = getEnv("VECTOR_BACKEND", cfg.Index.Backend)
	cfg.Index.Name = getEnv("INDEX_NAME", cfg.Index.Name)
	cfg.Index.Environment = getEnv("INDEX_ENVIRONMENT", cfg.Index.Environment)
	cfg.Index.Host = getEnv("QDRANT_HOST", cfg.Index.Host)
	cfg.Index.Port = getEnvInt("QDRANT_PORT", cfg.Index.Port)
	cfg.Index.APIKey = getEnv("QDRANT_API_KEY", cfg.Index.APIKey)
	cfg.Index.UseTLS = getEnvBool("QDRANT_USE_TLS", cfg.Index.UseTLS)
	cfg.Index.ReadyAttempts = getEnvInt("INDEX_READY_ATTEMPTS", cfg.Index.ReadyAttempts)
	cfg.Index.SQLitePath = getEnv("SQLITE_PATH", cfg.Index.SQLitePath)

	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Repo = getEnv("LLM_MODEL_REPO", cfg.LLM.Repo)
	cfg.LLM.File = getEnv("LLM_MODEL_FILE", cfg.LLM.File)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.ServerMode = getEnvBool("SERVER_MODE", cfg.Server.ServerMode)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
