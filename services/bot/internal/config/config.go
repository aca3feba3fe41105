package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"palmreader/pkg/ai"
)

// ConfigPath is the default YAML file. It is optional; the bot can run on
// environment variables alone.
const ConfigPath = "config.yaml"

// EnvFile is loaded into the environment before overrides are applied.
const EnvFile = ".env"

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogsDir     string `yaml:"logsDir"`
	BotToken    string `yaml:"botToken"`
	DatabaseURL string `yaml:"databaseURL"`
	// AdminChat is kept as text so a malformed id can be reported.
	AdminChat   string `yaml:"adminChatId"`
	AdminChatID int64  `yaml:"-"`

	GeminiAPIKey       string              `yaml:"geminiAPIKey"`
	GenerationProvider string              `yaml:"generationProvider"`
	GenerationModel    string              `yaml:"generationModel"`
	GenerationBaseURL  string              `yaml:"generationBaseURL"`
	GenerationAPIKey   string              `yaml:"generationAPIKey"`
	Generation         ai.GenerationConfig `yaml:"generation"`
	Prompt             string              `yaml:"prompt"`
	PhraseTablePath    string              `yaml:"phraseTablePath"`

	TelegramProxyURL   string `yaml:"telegramProxyURL"`
	PollTimeoutSeconds int    `yaml:"pollTimeoutSeconds"`
	Workers            int    `yaml:"workers"`

	AckDelayMillis         int `yaml:"ackDelayMillis"`
	ChunkDelayMillis       int `yaml:"chunkDelayMillis"`
	CallTimeoutSeconds     int `yaml:"callTimeoutSeconds"`
	PipelineTimeoutSeconds int `yaml:"pipelineTimeoutSeconds"`

	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	PhotoQuotaPerHour int    `yaml:"photoQuotaPerHour"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`
}

// Load reads config from path (defaults to config.yaml), then .env, then
// environment overrides, and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", EnvFile, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() FileConfig {
	return FileConfig{
		LogLevel:               "info",
		GenerationProvider:     "gemini",
		Generation:             ai.DefaultGenerationConfig(),
		PollTimeoutSeconds:     30,
		Workers:                8,
		AckDelayMillis:         3000,
		ChunkDelayMillis:       500,
		CallTimeoutSeconds:     60,
		PipelineTimeoutSeconds: 300,
	}
}

func applyEnv(cfg *FileConfig) error {
	var errs []error
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOGS_DIR", &cfg.LogsDir)
	setString("BOT_TOKEN", &cfg.BotToken)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("ADMIN_CHAT_ID", &cfg.AdminChat)
	setString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	setString("GENERATION_PROVIDER", &cfg.GenerationProvider)
	setString("GENERATION_MODEL", &cfg.GenerationModel)
	setString("GENERATION_BASE_URL", &cfg.GenerationBaseURL)
	setString("GENERATION_API_KEY", &cfg.GenerationAPIKey)
	setString("PHRASE_TABLE_PATH", &cfg.PhraseTablePath)
	setString("TELEGRAM_PROXY_URL", &cfg.TelegramProxyURL)
	setInt("WORKERS", &cfg.Workers)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setInt("PHOTO_QUOTA_PER_HOUR", &cfg.PhotoQuotaPerHour)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)
	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MINIO_USE_SSL %q is not a boolean", v))
		} else {
			cfg.MinioUseSSL = b
		}
	}
	setString("AMQP_URL", &cfg.AMQPURL)
	setString("AMQP_EXCHANGE", &cfg.AMQPExchange)
	return errors.Join(errs...)
}

func validateConfig(cfg *FileConfig) error {
	if cfg.BotToken == "" {
		return errors.New("config: botToken is required (set in config.yaml or BOT_TOKEN)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch strings.ToLower(cfg.GenerationProvider) {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" && cfg.GenerationAPIKey == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
	case "ollama", "openai-compat", "openai":
		if cfg.GenerationBaseURL == "" {
			return fmt.Errorf("config: generationBaseURL is required for provider %s (set in config.yaml or GENERATION_BASE_URL)", cfg.GenerationProvider)
		}
		if cfg.GenerationModel == "" {
			return fmt.Errorf("config: generationModel is required for provider %s (set in config.yaml or GENERATION_MODEL)", cfg.GenerationProvider)
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if raw := strings.TrimSpace(cfg.AdminChat); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("config: adminChatId %q is not a valid chat id (set in config.yaml or ADMIN_CHAT_ID)", raw)
		}
		cfg.AdminChatID = id
	}
	if cfg.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if cfg.PhotoQuotaPerHour < 0 {
		return errors.New("config: photoQuotaPerHour must not be negative")
	}
	if cfg.PhotoQuotaPerHour > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when photoQuotaPerHour is set (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set (set in config.yaml or MINIO_BUCKET)")
	}
	if cfg.CallTimeoutSeconds <= 0 || cfg.PipelineTimeoutSeconds <= 0 {
		return errors.New("config: callTimeoutSeconds and pipelineTimeoutSeconds must be positive")
	}
	if cfg.AckDelayMillis < 0 || cfg.ChunkDelayMillis < 0 {
		return errors.New("config: delays must not be negative")
	}
	return nil
}

// GeneratorAPIKey picks the credential for the configured provider.
func (c FileConfig) GeneratorAPIKey() string {
	if c.GenerationAPIKey != "" {
		return c.GenerationAPIKey
	}
	if strings.EqualFold(c.GenerationProvider, "gemini") || c.GenerationProvider == "" {
		return c.GeminiAPIKey
	}
	return ""
}

// AckDelay is the pause between the placeholder and the rest of the pipeline.
func (c FileConfig) AckDelay() time.Duration {
	return time.Duration(c.AckDelayMillis) * time.Millisecond
}

// ChunkDelay is the pause between reply parts.
func (c FileConfig) ChunkDelay() time.Duration {
	return time.Duration(c.ChunkDelayMillis) * time.Millisecond
}

// CallTimeout bounds every external call.
func (c FileConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// PipelineTimeout bounds one photo message end to end.
func (c FileConfig) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutSeconds) * time.Second
}

// PollTimeout is the Telegram long-poll timeout.
func (c FileConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}
