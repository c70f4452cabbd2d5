package portal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/core-coin/payportal/internal/metrics"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/subscription"
	"github.com/core-coin/payportal/pkg/logger"
	"github.com/core-coin/payportal/pkg/validation"
)

const (
	// DefaultPaymentTimeout is advertised in 402 bodies when none is configured.
	DefaultPaymentTimeout = 900 * time.Second
	// DefaultBasePath is where payment links are served.
	DefaultBasePath = "/pay"
)

// Verifiers is the chain id to verifier mapping built at startup.
type Verifiers interface {
	Get(chainID int64) (models.Verifier, bool)
	Verify(ctx context.Context, chainID int64, req models.VerifyRequest) *models.VerifyResult
	Chains() []models.ChainConfig
}

type Config struct {
	// BaseURL prefixes callback URLs, e.g. "https://pay.example.com".
	BaseURL  string
	BasePath string
	// SignatureSecret signs 402 bodies; empty disables signing.
	SignatureSecret string
	PaymentTimeout  time.Duration
	// CheckInterval is the period of the subscription due check.
	CheckInterval time.Duration
}

// Portal is the protocol engine. It turns payment link requests into
// access decisions, confirms payments against the chain verifiers and
// drives subscriptions and notifications.
type Portal struct {
	logger   *logger.Logger
	config   Config
	recorder metrics.Recorder

	storage       models.Storage
	verifiers     Verifiers
	notificator   models.NotificationService
	subscriptions *subscription.Manager
	scheduler     *subscription.Scheduler

	now func() time.Time
}

var _ models.PortalService = (*Portal)(nil)

// NewPortal creates a new Portal instance. recorder and notificator may be nil.
func NewPortal(
	storage models.Storage,
	verifiers Verifiers,
	notificator models.NotificationService,
	recorder metrics.Recorder,
	config Config,
	logger *logger.Logger,
) *Portal {
	if config.PaymentTimeout <= 0 {
		config.PaymentTimeout = DefaultPaymentTimeout
	}
	if config.BasePath == "" {
		config.BasePath = DefaultBasePath
	}
	config.BasePath = "/" + strings.Trim(config.BasePath, "/")
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	p := &Portal{
		logger:        logger,
		config:        config,
		recorder:      recorder,
		storage:       storage,
		verifiers:     verifiers,
		notificator:   notificator,
		subscriptions: subscription.NewManager(storage, logger.Named("subscription")),
		now:           time.Now,
	}
	p.scheduler = subscription.NewScheduler(storage, config.CheckInterval, p.handleDueSubscription, logger.Named("scheduler"))
	return p
}

// WithClock replaces the wall clock of the portal and its subscription
// engine. Used by tests.
func (p *Portal) WithClock(now func() time.Time) *Portal {
	p.now = now
	p.subscriptions.WithClock(now)
	p.scheduler.WithClock(now)
	return p
}

// Start starts the subscription due check.
func (p *Portal) Start() {
	p.logger.Infow("Starting portal", "chains", len(p.verifiers.Chains()), "basePath", p.config.BasePath)
	p.scheduler.Start()
}

// Stop waits for the due check in progress and stops it.
func (p *Portal) Stop() {
	p.scheduler.Stop()
	p.logger.Info("Portal stopped")
}

// Chains lists the configured chains.
func (p *Portal) Chains() []models.ChainConfig {
	return p.verifiers.Chains()
}

// Subscriptions exposes the lifecycle engine.
func (p *Portal) Subscriptions() *subscription.Manager {
	return p.subscriptions
}

// CheckDueSubscriptions runs one due check immediately and returns the
// number of subscriptions handled.
func (p *Portal) CheckDueSubscriptions(ctx context.Context) int {
	return p.scheduler.RunOnce(ctx)
}

func (p *Portal) notify(ctx context.Context, payload *models.WebhookPayload) {
	if p.notificator == nil {
		return
	}
	p.notificator.Notify(ctx, payload)
}

func (p *Portal) loadLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	link, err := p.storage.GetPaymentLink(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewProtocolError(models.KindNotFound, models.ReasonLinkNotFound)
	}
	return link, err
}

func (p *Portal) validateAddress(chainID int64, addr string) error {
	v, ok := p.verifiers.Get(chainID)
	if !ok {
		return models.NewProtocolError(models.KindInvalid, models.ReasonChainNotSupported)
	}
	chain := v.Chain()
	if chain.IsMock() {
		return nil
	}
	if err := validation.ValidateAddress(string(chain.Type), addr); err != nil {
		return models.Invalid("invalid address %q for chain %d: %v", addr, chainID, err)
	}
	return nil
}

// canonicalAddress lowercases hex addresses so one subscriber maps to one
// subscription regardless of checksum casing.
func canonicalAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	n := validation.NormalizeAddress(addr)
	if n == addr {
		return addr
	}
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return "0x" + n
	}
	return n
}
