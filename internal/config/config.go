// Package config loads process configuration from flags with environment
// fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/dvloznov/bank-assistant/internal/personalize"
	"github.com/dvloznov/bank-assistant/internal/session"
)

// Config is the assistant's runtime configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	GeminiAPIKey     string
	DomainModel      string
	GeneralModel     string
	SystemPromptFile string
	// SystemPrompt is read from SystemPromptFile by Load.
	SystemPrompt string

	MaxLength         int
	Temperature       float64
	TopP              float64
	NoRepeatNGram     int
	GenerationTimeout time.Duration
	MaxConcurrent     int
	Serialize         bool

	Policy         string
	CurrencySymbol string
	LedgerSource   string
	HistoryWindow  int
	SessionIdle    time.Duration

	GCPProject string
	BQDataset  string
	BQTable    string

	// DatabaseURL enables the Postgres archive. The turns table name is
	// shared with BigQuery.
	DatabaseURL string

	NotionToken string
	NotionDBID  string

	TelegramToken string
	// TelegramUsers maps Telegram user ids to ledger user ids, written as
	// "12345=user_001,67890=user_2".
	TelegramUsers string

	QueueBuffer  int
	QueueWorkers int
}

type envReader struct {
	errs []error
}

func (e *envReader) add(err error) {
	e.errs = append(e.errs, err)
}

func (e *envReader) lookupString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) lookupInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) lookupFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *envReader) lookupDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) lookupBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.add(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// Register defines every configuration flag on fs, with defaults taken from
// the environment, and returns the Config they populate.
func Register(fs *flag.FlagSet) (*Config, error) {
	env := &envReader{}
	cfg := &Config{}

	fs.StringVar(&cfg.Port, "port", env.lookupString("PORT", "8080"), "HTTP server port (or set PORT)")
	fs.StringVar(&cfg.LogLevel, "log-level", env.lookupString("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", env.lookupString("LOG_FORMAT", "console"), "Log format: console or json")

	fs.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", env.lookupString("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")), "Gemini API key (or set GEMINI_API_KEY)")
	fs.StringVar(&cfg.DomainModel, "domain-model", env.lookupString("DOMAIN_MODEL", generation.DefaultDomainModel), "Model for the banking-tuned generation stage")
	fs.StringVar(&cfg.GeneralModel, "general-model", env.lookupString("GENERAL_MODEL", generation.DefaultGeneralModel), "Model for the general generation stage")
	fs.StringVar(&cfg.SystemPromptFile, "system-prompt-file", env.lookupString("SYSTEM_PROMPT_FILE", ""), "File overriding the banking system instruction")

	fs.IntVar(&cfg.MaxLength, "max-length", env.lookupInt("GEN_MAX_LENGTH", generation.DefaultParams.MaxLength), "Maximum generated tokens")
	fs.Float64Var(&cfg.Temperature, "temperature", env.lookupFloat("GEN_TEMPERATURE", float64(generation.DefaultParams.Temperature)), "Sampling temperature")
	fs.Float64Var(&cfg.TopP, "top-p", env.lookupFloat("GEN_TOP_P", float64(generation.DefaultParams.TopP)), "Nucleus sampling probability")
	fs.IntVar(&cfg.NoRepeatNGram, "no-repeat-ngram", env.lookupInt("GEN_NO_REPEAT_NGRAM", generation.DefaultParams.NoRepeatNGram), "No-repeat n-gram size, 0 disables")
	fs.DurationVar(&cfg.GenerationTimeout, "generation-timeout", env.lookupDuration("GEN_TIMEOUT", 20*time.Second), "Per-call generation timeout")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent-generations", env.lookupInt("GEN_MAX_CONCURRENT", 4), "Concurrent generation calls per stage")
	fs.BoolVar(&cfg.Serialize, "serialize-generation", env.lookupBool("GEN_SERIALIZE", false), "Run one generation call at a time per stage")

	fs.StringVar(&cfg.Policy, "personalization", env.lookupString("PERSONALIZATION_POLICY", string(personalize.OverrideAll)), "Personalization policy: override_all or fallback_only")
	fs.StringVar(&cfg.CurrencySymbol, "currency-symbol", env.lookupString("CURRENCY_SYMBOL", domain.DefaultCurrencySymbol), "Currency symbol used in responses")
	fs.StringVar(&cfg.LedgerSource, "ledger", env.lookupString("LEDGER_SOURCE", ""), "Account snapshot: file path or gs:// URI (empty uses demo data)")
	fs.IntVar(&cfg.HistoryWindow, "history-window", env.lookupInt("HISTORY_WINDOW", session.DefaultWindow), "Turns of history given to the generative fallback")
	fs.DurationVar(&cfg.SessionIdle, "session-idle", env.lookupDuration("SESSION_IDLE", session.DefaultIdleWindow), "Idle time before a session expires")

	fs.StringVar(&cfg.GCPProject, "project", env.lookupString("GCP_PROJECT", ""), "GCP project for the BigQuery archive")
	fs.StringVar(&cfg.BQDataset, "dataset", env.lookupString("BQ_DATASET", ""), "BigQuery dataset for the archive")
	fs.StringVar(&cfg.BQTable, "table", env.lookupString("BQ_TABLE", archive.DefaultTurnsTable), "Table for archived turns")
	fs.StringVar(&cfg.DatabaseURL, "database-url", env.lookupString("DATABASE_URL", ""), "Postgres connection string for the archive (or set DATABASE_URL)")

	fs.StringVar(&cfg.NotionToken, "notion-token", env.lookupString("NOTION_TOKEN", ""), "Notion API token")
	fs.StringVar(&cfg.NotionDBID, "notion-db-id", env.lookupString("NOTION_DB_ID", ""), "Notion database for archived turns")

	fs.StringVar(&cfg.TelegramToken, "telegram-token", env.lookupString("TELEGRAM_BOT_TOKEN", ""), "Telegram bot token (or set TELEGRAM_BOT_TOKEN)")
	fs.StringVar(&cfg.TelegramUsers, "telegram-users", env.lookupString("TELEGRAM_USERS", ""), "Telegram user to ledger user mapping, e.g. 12345=user_001")

	fs.IntVar(&cfg.QueueBuffer, "queue-buffer", env.lookupInt("QUEUE_BUFFER", 100), "Archive queue buffer size")
	fs.IntVar(&cfg.QueueWorkers, "queue-workers", env.lookupInt("QUEUE_WORKERS", 5), "Archive queue workers")

	if len(env.errs) > 0 {
		return cfg, fmt.Errorf("Register: invalid environment: %w", errors.Join(env.errs...))
	}
	return cfg, nil
}

// Load registers flags on fs, parses args, validates the result and reads
// the system prompt file when one is set.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg, err := Register(fs)
	if err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("Load: parsing flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SystemPromptFile != "" {
		prompt, err := LoadSystemPrompt(cfg.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		cfg.SystemPrompt = prompt
	}
	return cfg, nil
}

// Validate checks field ranges and combinations.
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := personalize.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("max-length must be positive, got %d", c.MaxLength))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top-p must be in (0, 1], got %g", c.TopP))
	}
	if c.NoRepeatNGram < 0 {
		errs = append(errs, fmt.Errorf("no-repeat-ngram must not be negative, got %d", c.NoRepeatNGram))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("generation-timeout must be positive"))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max-concurrent-generations must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("history-window must not be negative, got %d", c.HistoryWindow))
	}
	if c.SessionIdle <= 0 {
		errs = append(errs, fmt.Errorf("session-idle must be positive"))
	}
	if c.BQDataset != "" && c.GCPProject == "" {
		errs = append(errs, fmt.Errorf("dataset %q needs a project", c.BQDataset))
	}
	if (c.NotionToken == "") != (c.NotionDBID == "") {
		errs = append(errs, fmt.Errorf("notion-token and notion-db-id must be set together"))
	}
	if _, err := ParseTelegramUsers(c.TelegramUsers); err != nil {
		errs = append(errs, err)
	}
	if c.QueueBuffer < 0 || c.QueueWorkers < 1 {
		errs = append(errs, fmt.Errorf("queue-buffer must not be negative and queue-workers must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Params returns the generation parameters.
func (c *Config) Params() generation.Params {
	return generation.Params{
		MaxLength:     c.MaxLength,
		Temperature:   float32(c.Temperature),
		TopP:          float32(c.TopP),
		NoRepeatNGram: c.NoRepeatNGram,
	}
}

// PersonalizationPolicy returns the parsed policy. Call after Validate.
func (c *Config) PersonalizationPolicy() personalize.Policy {
	p, _ := personalize.ParsePolicy(c.Policy)
	return p
}

// BigQueryEnabled reports whether the BigQuery archive is configured.
func (c *Config) BigQueryEnabled() bool {
	return c.GCPProject != "" && c.BQDataset != ""
}

// PostgresEnabled reports whether the Postgres archive is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// TelegramAccounts returns the parsed Telegram user mapping. Call after
// Validate.
func (c *Config) TelegramAccounts() map[int64]string {
	m, _ := ParseTelegramUsers(c.TelegramUsers)
	return m
}

// ParseTelegramUsers parses a comma-separated list of tgID=userID pairs.
func ParseTelegramUsers(s string) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tg, user, ok := strings.Cut(pair, "=")
		tg, user = strings.TrimSpace(tg), strings.TrimSpace(user)
		if !ok || user == "" {
			return nil, fmt.Errorf("telegram-users: %q is not id=user", pair)
		}
		id, err := strconv.ParseInt(tg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram-users: %q: bad telegram id", pair)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("telegram-users: id %d listed twice", id)
		}
		out[id] = user
	}
	return out, nil
}

// NotionEnabled reports whether the Notion archive is configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDBID != ""
}

// GeminiEnabled reports whether generation has credentials.
func (c *Config) GeminiEnabled() bool {
	return c.GeminiAPIKey != ""
}

// BankingInstruction returns the system instruction for the domain stage.
func (c *Config) BankingInstruction() string {
	if strings.TrimSpace(c.SystemPrompt) != "" {
		return strings.TrimSpace(c.SystemPrompt)
	}
	return generation.BankingInstruction
}

// LoadSystemPrompt reads a system prompt file and rejects blank prompts.
func LoadSystemPrompt(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading system prompt %s: %w", path, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return string(content), nil
}
