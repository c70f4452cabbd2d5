package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/core-coin/payportal/internal/blockchain"
	"github.com/core-coin/payportal/internal/config"
	"github.com/core-coin/payportal/internal/http_api"
	"github.com/core-coin/payportal/internal/metrics"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/notificator"
	"github.com/core-coin/payportal/internal/portal"
	"github.com/core-coin/payportal/internal/repository"
	"github.com/core-coin/payportal/internal/webhook"
	"github.com/core-coin/payportal/internal/wellknown"
	"github.com/core-coin/payportal/pkg/logger"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "payportal",
		Usage:   "PayPortal is a self-hosted crypto payment gateway speaking HTTP 402/403",
		Version: version,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"P"}, Usage: "HTTP port"},
			&cli.StringFlag{Name: "base-url", Usage: "Public base URL used in callback links"},
			&cli.StringFlag{Name: "base-path", Usage: "Path prefix of payment links"},
			&cli.StringFlag{Name: "storage", Aliases: []string{"s"}, Usage: "Storage backend (memory or postgres)"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "webhook-url", Aliases: []string{"w"}, Usage: "Webhook endpoint"},
			&cli.StringFlag{Name: "webhook-secret", Usage: "Webhook signing secret"},
			&cli.BoolFlag{Name: "metrics", Aliases: []string{"m"}, Usage: "Expose Prometheus metrics at /metrics"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// applyFlags overrides environment configuration with flags that were set.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("base-url") {
		cfg.BaseURL = c.String("base-url")
	}
	if c.IsSet("base-path") {
		cfg.BasePath = c.String("base-path")
	}
	if c.IsSet("storage") {
		cfg.Storage = c.String("storage")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("webhook-url") {
		cfg.WebhookURL = c.String("webhook-url")
	}
	if c.IsSet("webhook-secret") {
		cfg.WebhookSecret = c.String("webhook-secret")
	}
	if c.IsSet("metrics") {
		cfg.MetricsEnabled = c.Bool("metrics")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.APIPort)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var storage models.Storage
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log.Named("postgres"))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %v", err)
		}
		defer db.Close()
		storage = db
	default:
		log.Warn("Using in-memory storage, data is lost on restart")
		storage = repository.NewMemoryStorage()
	}

	// Initialize metrics
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheusRecorder()
		recorder = prom
		metricsHandler = prom.Handler()
	}

	// Initialize token registry and chain verifiers
	tokens := wellknown.NewTokenRegistry(log.Named("tokens"), cfg.Tokens, cfg.TokenListURL, cfg.TokenListInterval)
	tokens.StartPeriodicUpdate()
	defer tokens.Stop()

	verifiers, err := blockchain.NewRegistry(cfg.Chains, tokens, recorder, log.Named("blockchain"))
	if err != nil {
		return fmt.Errorf("failed to initialize chain verifiers: %v", err)
	}

	// Initialize webhook delivery
	webhooks := webhook.NewManager(webhook.Config{
		URL:       cfg.WebhookURL,
		Secret:    cfg.WebhookSecret,
		Events:    cfg.WebhookEvents,
		Headers:   cfg.WebhookHeaders,
		Timeout:   cfg.WebhookTimeout,
		Retries:   cfg.WebhookRetries,
		QueueSize: cfg.WebhookQueueSize,
	}, recorder, log.Named("webhook"))
	webhooks.Start()
	defer webhooks.Stop()

	// Initialize notificator
	notifier := notificator.NewNotificator(log.Named("notificator"), webhooks, cfg.AlertEvents)
	if cfg.TelegramBotToken != "" {
		telegram, err := notificator.NewTelegramNotificator(ctx, log.Named("telegram"), cfg.TelegramBotToken)
		if err != nil {
			log.Errorw("Telegram alerts disabled", "error", err)
		} else {
			notifier.AddAlertSink("telegram", cfg.TelegramChatID, telegram)
		}
	}
	if cfg.SMTPHost != "" && cfg.AlertEmail != "" {
		email := notificator.NewEmailNotificator(log.Named("email"), cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
		notifier.AddAlertSink("email", cfg.AlertEmail, email)
	}
	defer notifier.Stop()

	// Create the protocol engine
	portalApp := portal.NewPortal(storage, verifiers, notifier, recorder, portal.Config{
		BaseURL:         cfg.BaseURL,
		BasePath:        cfg.BasePath,
		SignatureSecret: cfg.SignatureSecret,
		PaymentTimeout:  cfg.PaymentTimeout,
		CheckInterval:   cfg.SubscriptionCheckInterval,
	}, log.Named("portal"))
	portalApp.Start()
	defer portalApp.Stop()

	apiServer := http_api.NewHTTPServer(portalApp, http_api.Config{
		Port:           cfg.APIPort,
		BasePath:       cfg.BasePath,
		APIKey:         cfg.APIKey,
		CORS:           cfg.CORS,
		MetricsHandler: metricsHandler,
		Version:        version,
	}, log.Named("http"))
	go apiServer.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received")
	if err := apiServer.Shutdown(); err != nil {
		log.Errorw("Failed to shut down HTTP server", "error", err)
	}
	// deferred stops run in reverse order: portal, notificator, webhooks, tokens, storage
	return nil
}
