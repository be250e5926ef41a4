package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the earshot backend
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Voice     VoiceConfig     `mapstructure:"voice"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Concierge ConciergeConfig `mapstructure:"concierge"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

func (g GeneralConfig) Validate() error {
	if strings.TrimSpace(g.JWTSecret) == "" {
		return fmt.Errorf("general.jwt_secret is required")
	}
	return nil
}

// DatabasesConfig groups the persistent and ephemeral stores
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("databases.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("databases.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders the connection string, preferring the explicit url.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. An empty host disables
// Redis-backed features (shared rate limits, event stream, scheduler lock).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr renders host:port with the default Redis port applied.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// ProvidersConfig contains external synthesis provider settings
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the chat and speech providers
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	ChatModel   string  `mapstructure:"chat_model"`
	TTSModel    string  `mapstructure:"tts_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// StorageConfig contains object storage settings
type StorageConfig struct {
	GCS GCSConfig `mapstructure:"gcs"`
}

// GCSConfig contains Google Cloud Storage settings. An empty bucket disables
// audio publishing (voice samples and episode audio return upstream errors).
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// PipelineConfig tunes the episode generation pipeline
type PipelineConfig struct {
	// StuckAfter is the single recovery threshold: episodes older than this
	// and still in flight are reaped as failed.
	StuckAfter     time.Duration `mapstructure:"stuck_after"`
	ContentTimeout time.Duration `mapstructure:"content_timeout"`
	AudioTimeout   time.Duration `mapstructure:"audio_timeout"`
	IssueWindow    time.Duration `mapstructure:"issue_window"`
	// Narrator is the voice episodes are rendered with.
	Narrator string `mapstructure:"narrator"`
}

func (p PipelineConfig) Validate() error {
	if p.StuckAfter < 0 {
		return fmt.Errorf("pipeline.stuck_after cannot be negative")
	}
	return nil
}

// Normalize applies defaults for unset pipeline values.
func (p PipelineConfig) Normalize() PipelineConfig {
	if p.StuckAfter == 0 {
		p.StuckAfter = 10 * time.Minute
	}
	if p.ContentTimeout == 0 {
		p.ContentTimeout = 2 * time.Minute
	}
	if p.AudioTimeout == 0 {
		p.AudioTimeout = 3 * time.Minute
	}
	if p.IssueWindow == 0 {
		p.IssueWindow = 7 * 24 * time.Hour
	}
	if p.Narrator == "" {
		p.Narrator = "alloy"
	}
	return p
}

// VoiceConfig tunes the voice-sample cache
type VoiceConfig struct {
	PreviewScript    string        `mapstructure:"preview_script"`
	SampleTimeout    time.Duration `mapstructure:"sample_timeout"`
	NormalizeTimeout time.Duration `mapstructure:"normalize_timeout"`
}

// Normalize applies defaults for unset voice values.
func (v VoiceConfig) Normalize() VoiceConfig {
	if v.PreviewScript == "" {
		v.PreviewScript = "Hi, I'm %s. This is how your episodes will sound when I read them to you."
	}
	if v.SampleTimeout == 0 {
		v.SampleTimeout = 30 * time.Second
	}
	if v.NormalizeTimeout == 0 {
		v.NormalizeTimeout = 15 * time.Second
	}
	return v
}

// RateLimitConfig declares the per-surface request budgets
type RateLimitConfig struct {
	Capture  RateSetting `mapstructure:"capture"`
	Feedback RateSetting `mapstructure:"feedback"`
	Voice    RateSetting `mapstructure:"voice"`
	Admin    RateSetting `mapstructure:"admin"`
}

// RateSetting is one fixed-window budget.
type RateSetting struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// Or returns the setting with defaults applied when unset.
func (r RateSetting) Or(max int, window time.Duration) RateSetting {
	if r.Max <= 0 {
		r.Max = max
	}
	if r.Window <= 0 {
		r.Window = window
	}
	return r
}

// NotifierConfig controls outbound event delivery
type NotifierConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	MinIdle        time.Duration `mapstructure:"min_idle"`
	DeliverTimeout time.Duration `mapstructure:"deliver_timeout"`
}

// Normalize applies defaults for unset notifier values.
func (n NotifierConfig) Normalize() NotifierConfig {
	if n.MaxAttempts == 0 {
		n.MaxAttempts = 5
	}
	if n.MinIdle == 0 {
		n.MinIdle = 30 * time.Second
	}
	if n.DeliverTimeout == 0 {
		n.DeliverTimeout = 10 * time.Second
	}
	return n
}

// SchedulerConfig controls the background maintenance loop
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaintenanceCron string        `mapstructure:"maintenance_cron"`
}

// Normalize applies defaults for unset scheduler values.
func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.MaintenanceCron == "" {
		s.MaintenanceCron = "@daily"
	}
	return s
}

// ConciergeConfig points at the external service that owns access requests
type ConciergeConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("general.listen", ":10010")
	viper.SetDefault("general.env", "dev")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("providers.openai.chat_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.tts_model", "tts-1")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("EARSHOT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (EARSHOT_*)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Pipeline = config.Pipeline.Normalize()
	config.Voice = config.Voice.Normalize()
	config.Notifier = config.Notifier.Normalize()
	config.Scheduler = config.Scheduler.Normalize()

	if err := config.General.Validate(); err != nil {
		panic(err)
	}
	if err := config.Databases.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Pipeline.Validate(); err != nil {
		panic(err)
	}
	return &config
}
