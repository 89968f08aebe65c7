package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultSlackChannel         = "baas44-agent-skills"
	DefaultMinCompletionPercent = 50
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	PublicURL   string
	LogLevel    string
	LogFormat   string
	JWTSecret   string

	GoogleClientID     string
	GoogleClientSecret string

	GeminiAPIKey  string
	GeminiModel   string
	AgentMaxSteps int

	SlackAPIURL  string
	SlackChannel string

	// MinCompletionPercent makes the statistics function fail below this
	// completion percentage. Zero turns the check off.
	MinCompletionPercent int
}

// ClientConfig is read by the terminal client.
type ClientConfig struct {
	ServerURL string
	Token     string
	LogFile   string
	LogLevel  string
}

var AppConfig Config

func newViper() *viper.Viper {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warnf("Ignoring unreadable config.yaml: %v", err)
		}
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig populates AppConfig from the environment, .env and config.yaml.
func LoadConfig() (*Config, error) {
	v := newViper()
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_URL", "tasks.db")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash-latest")
	v.SetDefault("AGENT_MAX_STEPS", 5)
	v.SetDefault("SLACK_API_URL", "https://slack.com/api")
	v.SetDefault("SLACK_CHANNEL", DefaultSlackChannel)
	v.SetDefault("STATS_MIN_COMPLETION_PERCENT", DefaultMinCompletionPercent)

	cfg := Config{
		HTTPPort:             v.GetString("HTTP_PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		PublicURL:            strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		GoogleClientID:       v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   v.GetString("GOOGLE_CLIENT_SECRET"),
		GeminiAPIKey:         v.GetString("GEMINI_API_KEY"),
		GeminiModel:          v.GetString("GEMINI_MODEL"),
		AgentMaxSteps:        v.GetInt("AGENT_MAX_STEPS"),
		SlackAPIURL:          strings.TrimRight(v.GetString("SLACK_API_URL"), "/"),
		SlackChannel:         v.GetString("SLACK_CHANNEL"),
		MinCompletionPercent: v.GetInt("STATS_MIN_COMPLETION_PERCENT"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	if cfg.AgentMaxSteps <= 0 {
		cfg.AgentMaxSteps = 5
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, the task assistant is disabled")
	}

	AppConfig = cfg
	return &cfg, nil
}

// LoadClientConfig reads the terminal client settings.
func LoadClientConfig() ClientConfig {
	v := newViper()
	v.SetDefault("TASKS_SERVER_URL", "http://localhost:8080")
	v.SetDefault("TASKS_LOG_FILE", "tasks.log")
	v.SetDefault("LOG_LEVEL", "INFO")

	return ClientConfig{
		ServerURL: strings.TrimRight(v.GetString("TASKS_SERVER_URL"), "/"),
		Token:     v.GetString("TASKS_TOKEN"),
		LogFile:   v.GetString("TASKS_LOG_FILE"),
		LogLevel:  v.GetString("LOG_LEVEL"),
	}
}

// ConnectorTokens reads CONNECTOR_<NAME>_TOKEN settings. Sources are loaded
// once; environment variables are still read on every lookup.
type ConnectorTokens struct {
	v *viper.Viper
}

func NewConnectorTokens() *ConnectorTokens {
	return &ConnectorTokens{v: newViper()}
}

// Lookup returns the token for a connector, or "" when unset.
func (c *ConnectorTokens) Lookup(name string) string {
	return c.v.GetString("CONNECTOR_" + strings.ToUpper(name) + "_TOKEN")
}
