package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DRAFTLY_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "server.api_token", typ: kString, env: "DRAFTLY_SERVER_API_TOKEN",
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		key: "platform.base_url", typ: kString, env: "DRAFTLY_PLATFORM_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Platform.BaseURL = v.(string) },
	},
	{
		key: "platform.bot_token", typ: kString, env: "DRAFTLY_PLATFORM_BOT_TOKEN",
		apply: func(cfg *Config, v any) { cfg.Platform.BotToken = v.(string) },
	},
	{
		key: "model.base_url", typ: kString, env: "DRAFTLY_MODEL_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Model.BaseURL = v.(string) },
	},
	{
		key: "model.api_key", typ: kString, env: "DRAFTLY_MODEL_API_KEY",
		apply: func(cfg *Config, v any) { cfg.Model.APIKey = v.(string) },
	},
	{
		key: "model.generation", typ: kString, env: "DRAFTLY_MODEL_GENERATION",
		apply: func(cfg *Config, v any) { cfg.Model.GenerationModel = v.(string) },
	},
	{
		key: "model.classifier", typ: kString, env: "DRAFTLY_MODEL_CLASSIFIER",
		apply: func(cfg *Config, v any) { cfg.Model.ClassifierModel = v.(string) },
	},
	{
		key: "model.embed", typ: kString, env: "DRAFTLY_MODEL_EMBED",
		apply: func(cfg *Config, v any) { cfg.Model.EmbedModel = v.(string) },
	},
	{
		key: "quota.included_units", typ: kInt, env: "DRAFTLY_QUOTA_INCLUDED_UNITS",
		apply: func(cfg *Config, v any) { cfg.Quota.IncludedUnits = v.(int) },
	},
	{
		key: "quota.overage_allowance", typ: kInt, env: "DRAFTLY_QUOTA_OVERAGE_ALLOWANCE",
		apply: func(cfg *Config, v any) { cfg.Quota.OverageAllowance = v.(int) },
	},
	{
		key: "quota.backend", typ: kString, env: "DRAFTLY_QUOTA_BACKEND",
		apply: func(cfg *Config, v any) { cfg.Quota.Backend = v.(string) },
	},
	{
		key: "quota.redis_addr", typ: kString, env: "DRAFTLY_QUOTA_REDIS_ADDR",
		apply: func(cfg *Config, v any) { cfg.Quota.RedisAddr = v.(string) },
	},
	{
		key: "context.window_minutes", typ: kInt, env: "DRAFTLY_CONTEXT_WINDOW_MINUTES",
		apply: func(cfg *Config, v any) { cfg.Context.WindowMinutes = v.(int) },
	},
	{
		key: "context.max_messages", typ: kInt, env: "DRAFTLY_CONTEXT_MAX_MESSAGES",
		apply: func(cfg *Config, v any) { cfg.Context.MaxMessages = v.(int) },
	},
	{
		key: "knowledge.top_k", typ: kInt, env: "DRAFTLY_KNOWLEDGE_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Knowledge.TopK = v.(int) },
	},
	{
		key: "knowledge.max_context_tokens", typ: kInt, env: "DRAFTLY_KNOWLEDGE_MAX_TOKENS",
		apply: func(cfg *Config, v any) { cfg.Knowledge.MaxContextTokens = v.(int) },
	},
	{
		key: "guardrail.forbidden_phrases", typ: kString, env: "DRAFTLY_GUARDRAIL_FORBIDDEN_PHRASES",
		apply: func(cfg *Config, v any) { cfg.Guardrail.ForbiddenPhrases = v.(string) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DRAFTLY_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "DRAFTLY_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
