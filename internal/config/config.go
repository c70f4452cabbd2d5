package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-coin/go-core/v2/common"
	"github.com/joho/godotenv"

	"github.com/core-coin/payportal/internal/models"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// DefaultChains are mock chains so a fresh install works without RPC endpoints.
var DefaultChains = []models.ChainConfig{
	{ChainID: 1, Name: "Ethereum", RPCURL: models.MockRPCURL, Symbol: "ETH", Type: models.ChainTypeEVM},
	{ChainID: 137, Name: "Polygon", RPCURL: models.MockRPCURL, Symbol: "MATIC", Type: models.ChainTypeEVM},
	{ChainID: 56, Name: "BNB Smart Chain", RPCURL: models.MockRPCURL, Symbol: "BNB", Type: models.ChainTypeEVM},
	{ChainID: 101, Name: "Solana", RPCURL: models.MockRPCURL, Symbol: "SOL", Type: models.ChainTypeSolana},
}

type Config struct {
	Development bool
	// API configuration
	APIPort        int
	BaseURL        string
	BasePath       string
	APIKey         string
	CORS           bool
	MetricsEnabled bool

	// Protocol configuration
	SignatureSecret           string
	PaymentTimeout            time.Duration
	SubscriptionCheckInterval time.Duration

	// Storage configuration
	Storage          string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Blockchain configuration
	Chains []models.ChainConfig
	Tokens []*models.Token
	// TokenListURL serves the well-known token list; empty disables refresh.
	TokenListURL      string
	TokenListInterval time.Duration
	CoreNetworkID     int64

	// Webhook configuration
	WebhookURL       string
	WebhookSecret    string
	WebhookEvents    []models.WebhookEvent
	WebhookHeaders   map[string]string
	WebhookTimeout   time.Duration
	WebhookRetries   int
	WebhookQueueSize int

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
	AlertEmail       string
	AlertEvents      []models.WebhookEvent
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:    getEnvAsBool("DEVELOPMENT", false),
		APIPort:        getEnvAsInt("API_PORT", 3003),
		BaseURL:        getEnv("BASE_URL", ""),
		BasePath:       getEnv("BASE_PATH", "/pay"),
		APIKey:         getEnv("API_KEY", ""),
		CORS:           getEnvAsBool("CORS", true),
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),

		SignatureSecret:           getEnv("SIGNATURE_SECRET", ""),
		PaymentTimeout:            getEnvAsDuration("PAYMENT_TIMEOUT", 900*time.Second),
		SubscriptionCheckInterval: getEnvAsDuration("SUBSCRIPTION_CHECK_INTERVAL", time.Hour),

		Storage:          getEnv("STORAGE", StorageMemory),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "payportal"),

		TokenListURL:      getEnv("TOKEN_LIST_URL", ""),
		TokenListInterval: getEnvAsDuration("TOKEN_LIST_INTERVAL", time.Hour),
		CoreNetworkID:     int64(getEnvAsInt("CORE_NETWORK_ID", 1)),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		WebhookEvents:    getEnvAsEvents("WEBHOOK_EVENTS"),
		WebhookTimeout:   getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookRetries:   getEnvAsInt("WEBHOOK_RETRIES", 3),
		WebhookQueueSize: getEnvAsInt("WEBHOOK_QUEUE_SIZE", 256),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertEmail:       getEnv("ALERT_EMAIL", ""),
		AlertEvents:      getEnvAsEvents("ALERT_EVENTS"),
	}

	cfg.Chains = DefaultChains
	if err := getEnvAsJSON("CHAINS", &cfg.Chains); err != nil {
		return nil, err
	}
	if err := getEnvAsJSON("TOKENS", &cfg.Tokens); err != nil {
		return nil, err
	}
	if err := getEnvAsJSON("WEBHOOK_HEADERS", &cfg.WebhookHeaders); err != nil {
		return nil, err
	}

	// Core addresses are rendered for the configured network
	common.DefaultNetworkID = common.NetworkID(cfg.CoreNetworkID)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("CHAINS must configure at least one chain")
	}
	seen := make(map[int64]struct{}, len(c.Chains))
	for _, raw := range c.Chains {
		chain := raw.Normalized()
		if chain.ChainID <= 0 {
			return fmt.Errorf("CHAINS: chain id must be positive, got %d", chain.ChainID)
		}
		if _, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("CHAINS: duplicate chain id %d", chain.ChainID)
		}
		seen[chain.ChainID] = struct{}{}
		switch chain.Type {
		case models.ChainTypeEVM, models.ChainTypeSolana, models.ChainTypeCore:
		default:
			return fmt.Errorf("CHAINS: chain %d has unknown type %q", chain.ChainID, chain.Type)
		}
		if chain.RPCURL == "" {
			return fmt.Errorf("CHAINS: chain %d needs an rpcUrl (or %q)", chain.ChainID, models.MockRPCURL)
		}
	}
	for _, t := range c.Tokens {
		if t.Symbol == "" || t.Address == "" {
			return fmt.Errorf("TOKENS: every token needs a symbol and an address")
		}
		if _, ok := seen[t.ChainID]; !ok {
			return fmt.Errorf("TOKENS: token %s is on unconfigured chain %d", t.Symbol, t.ChainID)
		}
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if c.SubscriptionCheckInterval <= 0 {
		return fmt.Errorf("SUBSCRIPTION_CHECK_INTERVAL must be positive")
	}

	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("WEBHOOK_URL must be an http(s) URL")
		}
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	if c.WebhookRetries < 1 {
		return fmt.Errorf("WEBHOOK_RETRIES must be at least 1")
	}
	if c.WebhookQueueSize < 1 {
		return fmt.Errorf("WEBHOOK_QUEUE_SIZE must be at least 1")
	}
	if err := validateEvents("WEBHOOK_EVENTS", c.WebhookEvents); err != nil {
		return err
	}
	if err := validateEvents("ALERT_EVENTS", c.AlertEvents); err != nil {
		return err
	}

	if c.AlertEmail != "" && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when ALERT_EMAIL is set")
	}

	return nil
}

func validateEvents(key string, events []models.WebhookEvent) error {
	known := make(map[models.WebhookEvent]struct{}, len(models.AllWebhookEvents))
	for _, e := range models.AllWebhookEvents {
		known[e] = struct{}{}
	}
	for _, e := range events {
		if _, ok := known[e]; !ok {
			return fmt.Errorf("%s: unknown event %q", key, e)
		}
	}
	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("10s") or whole seconds ("900").
func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsEvents(name string) []models.WebhookEvent {
	return ParseEvents(getEnv(name, ""))
}

// ParseEvents splits a comma separated event list.
func ParseEvents(list string) []models.WebhookEvent {
	var events []models.WebhookEvent
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			events = append(events, models.WebhookEvent(part))
		}
	}
	return events
}

func getEnvAsJSON(name string, target interface{}) error {
	valueStr, exists := os.LookupEnv(name)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(valueStr), target); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}
