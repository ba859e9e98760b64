package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/ghost-interviewer/internal/llm"
)

// EnvPrefix is the namespace prefix for all Ghost Interviewer environment variables.
const EnvPrefix = "GHOST_INTERVIEWER_"

// Config holds all application configuration. Secrets (API keys, broker
// URL, webhook secret) are loaded exclusively from environment variables
// and never appear in the config file.
type Config struct {
	DBPath      string `yaml:"db_path"`
	ReportDir   string `yaml:"report_dir"`
	ListenAddr  string `yaml:"listen_addr"`
	GatewayAddr string `yaml:"gateway_addr"`
	BackendURL  string `yaml:"backend_url"`
	LogLevel    string `yaml:"log_level"`

	SentinelMarker string `yaml:"sentinel_marker"`
	RoomPrefix     string `yaml:"room_prefix"`
	HandoffTimeout string `yaml:"handoff_timeout"`

	QueueName          string `yaml:"queue_name"`
	RetryDelay         string `yaml:"retry_delay"`
	MaxAttempts        int    `yaml:"max_attempts"`
	OutboxPollInterval string `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int    `yaml:"outbox_batch_size"`

	ScoringModel    string `yaml:"scoring_model"`
	DeepgramModel   string `yaml:"deepgram_model"`
	AudioSampleRate int    `yaml:"audio_sample_rate"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets, env vars only.
	RabbitMQURL     string `yaml:"-"`
	WebhookSecret   string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		DBPath:                "data/ghost-interviewer.db",
		ReportDir:             "data/reports",
		ListenAddr:            ":8080",
		GatewayAddr:           ":8081",
		BackendURL:            "http://127.0.0.1:8080",
		LogLevel:              "info",
		SentinelMarker:        "[INTERVIEW_COMPLETE]",
		RoomPrefix:            "interview-",
		HandoffTimeout:        "30s",
		QueueName:             "evaluation_jobs",
		RetryDelay:            "60s",
		MaxAttempts:           3,
		OutboxPollInterval:    "5s",
		OutboxBatchSize:       10,
		ScoringModel:          "gemini/gemini-2.0-flash",
		DeepgramModel:         "nova-2",
		AudioSampleRate:       16000,
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) ParsedHandoffTimeout() time.Duration {
	return parseDuration(c.HandoffTimeout, 30*time.Second)
}

func (c *Config) ParsedRetryDelay() time.Duration {
	return parseDuration(c.RetryDelay, 60*time.Second)
}

func (c *Config) ParsedOutboxPollInterval() time.Duration {
	return parseDuration(c.OutboxPollInterval, 5*time.Second)
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// APIKey returns the key for an LLM provider name as used in
// "provider/model" strings.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case llm.ProviderGemini:
		return c.GeminiAPIKey
	case llm.ProviderOpenAI:
		return c.OpenAIAPIKey
	case llm.ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"DB_PATH":                 &cfg.DBPath,
		"REPORT_DIR":              &cfg.ReportDir,
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"GATEWAY_ADDR":            &cfg.GatewayAddr,
		"BACKEND_URL":             &cfg.BackendURL,
		"LOG_LEVEL":               &cfg.LogLevel,
		"SENTINEL_MARKER":         &cfg.SentinelMarker,
		"ROOM_PREFIX":             &cfg.RoomPrefix,
		"HANDOFF_TIMEOUT":         &cfg.HandoffTimeout,
		"QUEUE_NAME":              &cfg.QueueName,
		"RETRY_DELAY":             &cfg.RetryDelay,
		"OUTBOX_POLL_INTERVAL":    &cfg.OutboxPollInterval,
		"SCORING_MODEL":           &cfg.ScoringModel,
		"DEEPGRAM_MODEL":          &cfg.DeepgramModel,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_ATTEMPTS":      &cfg.MaxAttempts,
		"OUTBOX_BATCH_SIZE": &cfg.OutboxBatchSize,
		"AUDIO_SAMPLE_RATE": &cfg.AudioSampleRate,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
}

// secret prefers the prefixed variable and falls back to the provider's
// conventional name.
func secret(name string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

func loadSecrets(cfg *Config) {
	cfg.RabbitMQURL = secret("RABBITMQ_URL")
	cfg.WebhookSecret = secret("WEBHOOK_SECRET")
	cfg.DeepgramAPIKey = secret("DEEPGRAM_API_KEY")
	cfg.GeminiAPIKey = secret("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = secret("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = secret("ANTHROPIC_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	provider, _, err := llm.ParseModel(cfg.ScoringModel)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid scoring_model %q; expected provider/model. Evaluation will fail.", cfg.ScoringModel))
	} else if cfg.APIKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for scoring provider %q; evaluation will fail. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}
	if cfg.RabbitMQURL == "" {
		warnings = append(warnings, "RabbitMQ URL not configured; evaluation jobs use an in-process queue. Set "+EnvPrefix+"RABBITMQ_URL.")
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured; gateway audio frames are disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.WebhookSecret == "" {
		warnings = append(warnings, "Webhook secret not configured; webhooks accept unauthenticated requests. Set "+EnvPrefix+"WEBHOOK_SECRET.")
	}

	for name, raw := range map[string]string{
		"handoff_timeout":      cfg.HandoffTimeout,
		"retry_delay":          cfg.RetryDelay,
		"outbox_poll_interval": cfg.OutboxPollInterval,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q; using the default.", name, raw))
		}
	}
	if cfg.MaxAttempts < 1 {
		warnings = append(warnings, fmt.Sprintf("Invalid max_attempts %d; using 3.", cfg.MaxAttempts))
		cfg.MaxAttempts = 3
	}
	if cfg.OutboxBatchSize < 1 {
		warnings = append(warnings, fmt.Sprintf("Invalid outbox_batch_size %d; using 10.", cfg.OutboxBatchSize))
		cfg.OutboxBatchSize = 10
	}
	if strings.TrimSpace(cfg.RoomPrefix) == "" {
		warnings = append(warnings, "Empty room_prefix; using \"interview-\".")
		cfg.RoomPrefix = "interview-"
	}
	if cfg.GDriveFolderID != "" {
		if _, err := os.Stat(cfg.GoogleCredentialsFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("Google credentials file %q not readable; Drive export is disabled.", cfg.GoogleCredentialsFile))
		}
	}

	return warnings
}
