package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Platform  PlatformConfig
	Model     ModelConfig
	Quota     QuotaConfig
	Context   ContextConfig
	Knowledge KnowledgeConfig
	Guardrail GuardrailConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken is the shared bearer token protecting the management API.
	APIToken string
}

// PlatformConfig points at the messaging platform's bot API.
type PlatformConfig struct {
	BaseURL  string
	BotToken string
}

type ModelConfig struct {
	BaseURL         string
	APIKey          string
	GenerationModel string
	ClassifierModel string
	EmbedModel      string
}

type QuotaConfig struct {
	IncludedUnits    int
	OverageAllowance int
	Backend          string // "sqlite" or "redis"
	RedisAddr        string
}

type ContextConfig struct {
	WindowMinutes int
	MaxMessages   int
}

type KnowledgeConfig struct {
	TopK             int
	MaxContextTokens int
}

type GuardrailConfig struct {
	// ForbiddenPhrases supplements the built-in output policy rules.
	// Stored as a comma-separated string in the backend.
	ForbiddenPhrases string
}

// Phrases splits the configured forbidden-phrase list.
func (g GuardrailConfig) Phrases() []string {
	if g.ForbiddenPhrases == "" {
		return nil
	}
	parts := strings.Split(g.ForbiddenPhrases, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "draftly-data"
		}
	}
	return filepath.Join(dir, "draftly")
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Platform: PlatformConfig{
			BaseURL: "https://chat.example.com/api",
		},
		Model: ModelConfig{
			BaseURL:         "https://openrouter.ai/api/v1",
			GenerationModel: "anthropic/claude-sonnet-4",
			ClassifierModel: "meta-llama/llama-3.1-8b-instruct",
			EmbedModel:      "openai/text-embedding-3-small",
		},
		Quota: QuotaConfig{
			IncludedUnits:    200,
			OverageAllowance: 0,
			Backend:          "sqlite",
			RedisAddr:        "localhost:6379",
		},
		Context: ContextConfig{
			WindowMinutes: 60,
			MaxMessages:   20,
		},
		Knowledge: KnowledgeConfig{
			TopK:             5,
			MaxContextTokens: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and environment
// variables. Environment variables (DRAFTLY_*) override file values.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Model.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: model API key (set DRAFTLY_MODEL_API_KEY or model.api_key in %s)", b.Describe())
	}
	if cfg.Platform.BotToken == "" {
		return Config{}, fmt.Errorf("missing required config: platform bot token (set DRAFTLY_PLATFORM_BOT_TOKEN or platform.bot_token in %s)", b.Describe())
	}
	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: server API token (set DRAFTLY_SERVER_API_TOKEN or server.api_token in %s)", b.Describe())
	}

	return cfg, nil
}
