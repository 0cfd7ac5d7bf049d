package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	appDirName     = "ResumeScanner"
	configFileName = "config"
	configFileType = "json"

	EvaluationLocal = "local"
	EvaluationLLM   = "llm"
)

// Config holds application configuration
type Config struct {
	GmailCredentialsPath string `json:"gmail_credentials_path" mapstructure:"gmail_credentials_path"`
	GmailTokenPath       string `json:"gmail_token_path" mapstructure:"gmail_token_path"`
	SearchQuery          string `json:"search_query" mapstructure:"search_query"`
	MaxEmails            int    `json:"max_emails" mapstructure:"max_emails"`
	ProcessOnlyFirstPDF  bool   `json:"process_only_first_pdf" mapstructure:"process_only_first_pdf"`

	MatchThreshold     float64 `json:"match_threshold" mapstructure:"match_threshold"`
	ThresholdInclusive bool    `json:"threshold_inclusive" mapstructure:"threshold_inclusive"`
	MinKeywordLength   int     `json:"min_keyword_length" mapstructure:"min_keyword_length"`
	DeleteLabel        string  `json:"delete_label" mapstructure:"delete_label"`

	UseOpenAI    bool   `json:"use_openai" mapstructure:"use_openai"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty" mapstructure:"openai_api_key"`
	OpenAIModel  string `json:"openai_model" mapstructure:"openai_model"`

	UseGemini    bool   `json:"use_gemini" mapstructure:"use_gemini"`
	GeminiAPIKey string `json:"gemini_api_key,omitempty" mapstructure:"gemini_api_key"`
	GeminiModel  string `json:"gemini_model" mapstructure:"gemini_model"`

	UseVertex             bool   `json:"use_vertex" mapstructure:"use_vertex"`
	GoogleCloudProject    string `json:"google_cloud_project" mapstructure:"google_cloud_project"`
	GoogleCloudLocation   string `json:"google_cloud_location" mapstructure:"google_cloud_location"`
	GoogleCredentialsPath string `json:"google_credentials_path" mapstructure:"google_credentials_path"`
	VertexModel           string `json:"vertex_model" mapstructure:"vertex_model"`

	UseClaude       bool   `json:"use_claude" mapstructure:"use_claude"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" mapstructure:"anthropic_api_key"`
	ClaudeModel     string `json:"claude_model" mapstructure:"claude_model"`

	RuleEvaluation string        `json:"rule_evaluation" mapstructure:"rule_evaluation"`
	RequestDelay   time.Duration `json:"request_delay" mapstructure:"request_delay"`
	RetryBackoff   time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
	LabelDelay     time.Duration `json:"label_delay" mapstructure:"label_delay"`

	HistoryDBPath string `json:"history_db_path" mapstructure:"history_db_path"`
	SaveDir       string `json:"save_dir,omitempty" mapstructure:"save_dir"`
	LogLevel      string `json:"log_level" mapstructure:"log_level"`
}

// envMappings binds config keys to the environment variables the scanner has always read
var envMappings = map[string]string{
	"gmail_credentials_path":  "GMAIL_CREDENTIALS_PATH",
	"gmail_token_path":        "GMAIL_TOKEN_PATH",
	"search_query":            "PDF_SEARCH_QUERY",
	"max_emails":              "MAX_EMAILS_TO_PROCESS",
	"process_only_first_pdf":  "PROCESS_ONLY_FIRST_PDF",
	"match_threshold":         "MATCH_THRESHOLD",
	"threshold_inclusive":     "THRESHOLD_INCLUSIVE",
	"min_keyword_length":      "MIN_KEYWORD_LENGTH",
	"delete_label":            "DELETE_LABEL_NAME",
	"use_openai":              "USE_OPENAI",
	"openai_api_key":          "OPENAI_API_KEY",
	"openai_model":            "OPENAI_MODEL",
	"use_gemini":              "USE_GEMINI",
	"gemini_api_key":          "GEMINI_API_KEY",
	"gemini_model":            "GEMINI_MODEL",
	"use_vertex":              "USE_VERTEX",
	"google_cloud_project":    "GOOGLE_CLOUD_PROJECT",
	"google_cloud_location":   "GOOGLE_CLOUD_LOCATION",
	"google_credentials_path": "GOOGLE_APPLICATION_CREDENTIALS",
	"vertex_model":            "VERTEX_MODEL",
	"use_claude":              "USE_CLAUDE",
	"anthropic_api_key":       "ANTHROPIC_API_KEY",
	"claude_model":            "CLAUDE_MODEL",
	"rule_evaluation":         "RULE_EVALUATION",
	"request_delay":           "REQUEST_DELAY",
	"retry_backoff":           "RETRY_BACKOFF",
	"label_delay":             "LABEL_DELAY",
	"history_db_path":         "HISTORY_DB_PATH",
	"save_dir":                "SAVE_DIR",
	"log_level":               "LOG_LEVEL",
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	historyPath := ""
	if dir, err := GetConfigDir(); err == nil {
		historyPath = filepath.Join(dir, "history.db")
	}

	return &Config{
		GmailCredentialsPath: "credentials.json",
		GmailTokenPath:       "token.json",
		SearchQuery:          "has:attachment filename:pdf",
		ProcessOnlyFirstPDF:  true,
		MatchThreshold:       0.5,
		ThresholdInclusive:   true,
		MinKeywordLength:     3,
		DeleteLabel:          "To Be Deleted",
		OpenAIModel:          "gpt-3.5-turbo",
		UseGemini:            true,
		GeminiModel:          "gemini-2.5-flash-lite",
		GoogleCloudLocation:  "us-central1",
		VertexModel:          "gemini-1.5-flash",
		ClaudeModel:          "claude-3-5-haiku-latest",
		RuleEvaluation:       EvaluationLocal,
		RequestDelay:         4 * time.Second,
		RetryBackoff:         2 * time.Second,
		HistoryDBPath:        historyPath,
		LogLevel:             "info",
	}
}

// GetConfigDir returns the per-user configuration directory
// On Windows: %APPDATA%/ResumeScanner
// On Unix: ~/.config/ResumeScanner
func GetConfigDir() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}

// GetConfigPath returns the path to the per-user configuration file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName+"."+configFileType), nil
}

// LoadFrom loads configuration from defaults, a .env file, a config file and the
// environment, in increasing order of precedence. An empty path searches ".",
// "./config" and the user config directory; a missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, envVar := range envMappings {
		if err := v.BindEnv(key, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			log.Debug().Msg("Config file not found, using environment variables and defaults")
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("gmail_credentials_path", d.GmailCredentialsPath)
	v.SetDefault("gmail_token_path", d.GmailTokenPath)
	v.SetDefault("search_query", d.SearchQuery)
	v.SetDefault("max_emails", d.MaxEmails)
	v.SetDefault("process_only_first_pdf", d.ProcessOnlyFirstPDF)
	v.SetDefault("match_threshold", d.MatchThreshold)
	v.SetDefault("threshold_inclusive", d.ThresholdInclusive)
	v.SetDefault("min_keyword_length", d.MinKeywordLength)
	v.SetDefault("delete_label", d.DeleteLabel)
	v.SetDefault("use_openai", d.UseOpenAI)
	v.SetDefault("openai_api_key", d.OpenAIAPIKey)
	v.SetDefault("openai_model", d.OpenAIModel)
	v.SetDefault("use_gemini", d.UseGemini)
	v.SetDefault("gemini_api_key", d.GeminiAPIKey)
	v.SetDefault("gemini_model", d.GeminiModel)
	v.SetDefault("use_vertex", d.UseVertex)
	v.SetDefault("google_cloud_project", d.GoogleCloudProject)
	v.SetDefault("google_cloud_location", d.GoogleCloudLocation)
	v.SetDefault("google_credentials_path", d.GoogleCredentialsPath)
	v.SetDefault("vertex_model", d.VertexModel)
	v.SetDefault("use_claude", d.UseClaude)
	v.SetDefault("anthropic_api_key", d.AnthropicAPIKey)
	v.SetDefault("claude_model", d.ClaudeModel)
	v.SetDefault("rule_evaluation", d.RuleEvaluation)
	v.SetDefault("request_delay", d.RequestDelay)
	v.SetDefault("retry_backoff", d.RetryBackoff)
	v.SetDefault("label_delay", d.LabelDelay)
	v.SetDefault("history_db_path", d.HistoryDBPath)
	v.SetDefault("save_dir", d.SaveDir)
	v.SetDefault("log_level", d.LogLevel)
}

// MarshalJSON writes durations as strings such as "4s", the form viper reads back
func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	return json.Marshal(struct {
		plain
		RequestDelay string `json:"request_delay"`
		RetryBackoff string `json:"retry_backoff"`
		LabelDelay   string `json:"label_delay"`
	}{
		plain:        plain(c),
		RequestDelay: c.RequestDelay.String(),
		RetryBackoff: c.RetryBackoff.String(),
		LabelDelay:   c.LabelDelay.String(),
	})
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.MatchThreshold)
	}

	if c.MinKeywordLength < 0 {
		return fmt.Errorf("min_keyword_length must not be negative")
	}

	if c.MaxEmails < 0 {
		return fmt.Errorf("max_emails must not be negative")
	}

	if strings.TrimSpace(c.DeleteLabel) == "" {
		return fmt.Errorf("delete_label is required")
	}

	switch c.RuleEvaluation {
	case EvaluationLocal, EvaluationLLM:
	default:
		return fmt.Errorf("rule_evaluation must be %q or %q, got %q", EvaluationLocal, EvaluationLLM, c.RuleEvaluation)
	}

	if c.UseOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("use_openai is set but OPENAI_API_KEY is empty")
	}

	if c.UseClaude && c.AnthropicAPIKey == "" {
		return fmt.Errorf("use_claude is set but ANTHROPIC_API_KEY is empty")
	}

	if c.UseVertex && c.GoogleCloudProject == "" {
		return fmt.Errorf("use_vertex is set but google_cloud_project is empty")
	}

	// gemini is on by default, so a missing key only matters when something asked for an LLM
	if c.RuleEvaluation == EvaluationLLM && !c.LLMEnabled() {
		ev := log.Warn().Str("rule_evaluation", c.RuleEvaluation)
		if c.UseGemini && c.GeminiAPIKey == "" {
			ev = ev.Str("hint", "use_gemini is set but GEMINI_API_KEY is empty")
		}
		ev.Msg("No usable LLM provider, rules are evaluated locally")
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}

	return nil
}

// ValidateGmail checks that the OAuth client secret is present
func (c *Config) ValidateGmail() error {
	if c.GmailCredentialsPath == "" {
		return fmt.Errorf("gmail_credentials_path is required")
	}
	if _, err := os.Stat(c.GmailCredentialsPath); err != nil {
		return fmt.Errorf("gmail credentials file not found (download it from Google Cloud Console): %w", err)
	}
	return nil
}

// LLMEnabled reports whether any LLM provider is switched on with usable credentials
func (c *Config) LLMEnabled() bool {
	return (c.UseGemini && c.GeminiAPIKey != "") ||
		(c.UseOpenAI && c.OpenAIAPIKey != "") ||
		(c.UseVertex && c.GoogleCloudProject != "") ||
		(c.UseClaude && c.AnthropicAPIKey != "")
}

// ApplyToEnv applies configuration values to environment variables
func (c *Config) ApplyToEnv() {
	if c.GoogleCloudProject != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	}
	if c.GoogleCloudLocation != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	}
	if c.GoogleCredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	}
}

// Redacted returns a copy with API keys masked, for display
func (c *Config) Redacted() *Config {
	out := *c
	out.OpenAIAPIKey = mask(c.OpenAIAPIKey)
	out.GeminiAPIKey = mask(c.GeminiAPIKey)
	out.AnthropicAPIKey = mask(c.AnthropicAPIKey)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
