package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/payportal/internal/blockchain"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/repository"
	"github.com/core-coin/payportal/pkg/logger"
)

const recipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []*models.WebhookPayload
}

func (n *recordingNotifier) Notify(_ context.Context, p *models.WebhookPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
}

func (n *recordingNotifier) count(event models.WebhookEvent) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, p := range n.payloads {
		if p.Event == event {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) last(event models.WebhookEvent) *models.WebhookPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.payloads) - 1; i >= 0; i-- {
		if n.payloads[i].Event == event {
			return n.payloads[i]
		}
	}
	return nil
}

type fixture struct {
	portal   *Portal
	store    *repository.MemoryStorage
	registry *blockchain.Registry
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry, err := blockchain.NewRegistry([]models.ChainConfig{
		{ChainID: 1, Name: "Ethereum", RPCURL: models.MockRPCURL, Symbol: "ETH"},
		{ChainID: 137, Name: "Polygon", RPCURL: models.MockRPCURL, Symbol: "MATIC"},
		{ChainID: 101, Name: "Solana", RPCURL: models.MockRPCURL, Symbol: "SOL"},
	}, nil, nil, logger.NewNop())
	require.NoError(t, err)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pay.example.com"
	}
	store := repository.NewMemoryStorage()
	notifier := &recordingNotifier{}
	c := &clock{t: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPortal(store, registry, notifier, nil, cfg, logger.NewNop()).WithClock(c.Now)
	return &fixture{portal: p, store: store, registry: registry, notifier: notifier, clock: c}
}

func (f *fixture) mock(t *testing.T, chainID int64) *blockchain.MockVerifier {
	t.Helper()
	m, ok := f.registry.Mock(chainID)
	require.True(t, ok)
	return m
}

func (f *fixture) createLink(t *testing.T, mutate func(*models.CreatePaymentLinkInput)) *models.PaymentLink {
	t.Helper()
	input := models.CreatePaymentLinkInput{
		TargetURL:        "https://example.com/article",
		Price:            models.Price{Amount: "0.01", TokenSymbol: "ETH", ChainID: 1},
		RecipientAddress: recipient,
		Description:      "Premium article",
	}
	if mutate != nil {
		mutate(&input)
	}
	link, err := f.portal.CreatePaymentLink(context.Background(), input)
	require.NoError(t, err)
	return link
}

func intPtr(v int) *int { return &v }

func TestResolveAccess_PayThenRedirect(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)
	assert.Equal(t, 1, f.notifier.count(models.EventLinkCreated))

	decision, err := f.portal.ResolveAccess(ctx, link.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.DecisionPaymentRequired, decision.Kind)
	body := decision.PaymentRequired
	assert.Equal(t, models.Protocol402, body.Protocol)
	assert.Equal(t, "0.01", body.Payment.Amount)
	assert.Equal(t, "ETH", body.Payment.TokenSymbol)
	assert.Equal(t, recipient, body.Payment.Recipient)
	assert.Equal(t, 900, body.Payment.TimeoutSeconds)
	assert.Equal(t, "https://pay.example.com/pay/"+link.ID+"/confirm", body.Callbacks.Confirm)
	assert.Equal(t, "https://pay.example.com/pay/"+link.ID+"/status", body.Callbacks.Status)
	assert.Len(t, body.Nonce, 32)
	assert.Empty(t, body.Signature)
	assert.Nil(t, body.Subscription)

	f.mock(t, 1).MarkConfirmed("0xabc")
	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmConfirmed, res.Status)
	assert.Equal(t, int64(1), res.ChainID)
	assert.Equal(t, "ETH", res.TokenSymbol)

	decision, err = f.portal.ResolveAccess(ctx, link.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRedirect, decision.Kind)
	assert.Equal(t, "https://example.com/article", decision.TargetURL)

	status, err := f.portal.GetStatus(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, status)
}

func TestResolveAccess_SignedBody(t *testing.T) {
	f := newFixture(t, Config{SignatureSecret: "s3cret", BasePath: "links/", PaymentTimeout: time.Minute})
	link := f.createLink(t, nil)

	decision, err := f.portal.ResolveAccess(context.Background(), link.ID, "")
	require.NoError(t, err)
	body := decision.PaymentRequired
	require.NotEmpty(t, body.Signature)
	assert.True(t, VerifyBody(body, "s3cret"))
	assert.False(t, VerifyBody(body, "other"))
	assert.Equal(t, 60, body.Payment.TimeoutSeconds)
	assert.Equal(t, "https://pay.example.com/links/"+link.ID+"/status", body.Callbacks.Status)

	body.Payment.Amount = "0.001"
	assert.False(t, VerifyBody(body, "s3cret"))

	again, err := f.portal.ResolveAccess(context.Background(), link.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, body.Nonce, again.PaymentRequired.Nonce)
}

func TestResolveAccess_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	decision, err := f.portal.ResolveAccess(ctx, "missing", "")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNotFound, decision.Kind)

	_, err = f.portal.ConfirmPayment(ctx, "missing", models.ConfirmPaymentInput{TxHash: "0x1"})
	perr, ok := models.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindNotFound, perr.Kind)
	assert.Equal(t, models.ReasonLinkNotFound, perr.Reason)

	status, err := f.portal.GetStatus(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotFound, status)
}

func TestResolveAccess_DisabledLink(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)

	_, err := f.portal.DisablePaymentLink(ctx, link.ID)
	require.NoError(t, err)
	_, err = f.portal.DisablePaymentLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count(models.EventLinkDisabled))

	decision, err := f.portal.ResolveAccess(ctx, link.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.DecisionForbidden, decision.Kind)
	assert.Equal(t, models.ReasonLinkDisabled, decision.Forbidden.ReasonCode)
	assert.Equal(t, models.Protocol403, decision.Forbidden.Protocol)
	assert.Equal(t, link.ID, decision.Forbidden.PaymentLinkID)
	assert.NotEmpty(t, decision.Forbidden.ReasonMessage)

	_, err = f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0x1"})
	perr, ok := models.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindForbidden, perr.Kind)
	assert.Equal(t, models.ReasonLinkDisabled, perr.Reason)
}

func TestResolveAccess_ExpiresLazily(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	expires := f.clock.Now().Add(time.Hour)
	link := f.createLink(t, func(in *models.CreatePaymentLinkInput) { in.ExpiresAt = &expires })

	f.clock.Advance(2 * time.Hour)
	for i := 0; i < 2; i++ {
		decision, err := f.portal.ResolveAccess(ctx, link.ID, "")
		require.NoError(t, err)
		require.Equal(t, models.DecisionForbidden, decision.Kind)
		assert.Equal(t, models.ReasonLinkExpired, decision.Forbidden.ReasonCode)
	}
	assert.Equal(t, 1, f.notifier.count(models.EventLinkExpired))

	stored, err := f.store.GetPaymentLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusExpired, stored.Status)
}

func TestResolveAccess_UsageLimit(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, func(in *models.CreatePaymentLinkInput) { in.MaxUses = intPtr(1) })

	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0x1"})
	require.NoError(t, err)
	require.Equal(t, models.ConfirmConfirmed, res.Status)

	decision, err := f.portal.ResolveAccess(ctx, link.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.DecisionForbidden, decision.Kind)
	assert.Equal(t, models.ReasonLinkUsageLimitReached, decision.Forbidden.ReasonCode)

	status, err := f.portal.GetStatus(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, status)

	// re-confirming the paying transaction stays idempotent
	res, err = f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0x1"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmConfirmed, res.Status)

	// a new transaction is refused
	_, err = f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0x2"})
	perr, ok := models.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonLinkUsageLimitReached, perr.Reason)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)

	first, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xabc"})
	require.NoError(t, err)
	second, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xabc"})
	require.NoError(t, err)

	assert.Equal(t, models.ConfirmConfirmed, first.Status)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	payments, err := f.portal.ListPayments(ctx, link.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentConfirmed))

	stored, err := f.store.GetPaymentLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}

func TestConfirmPayment_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xrace"})
			assert.NoError(t, err)
			assert.Equal(t, models.ConfirmConfirmed, res.Status)
		}()
	}
	wg.Wait()

	payments, err := f.portal.ListPayments(ctx, link.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentConfirmed))
	stored, err := f.store.GetPaymentLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}

func TestConfirmPayment_Underpaid(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)
	f.mock(t, 1).MarkUnderpaid("0xlow", "0.005")

	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xlow"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmFailed, res.Status)
	assert.Equal(t, models.ReasonPaymentUnderpaid, res.Reason)
	assert.Contains(t, res.Message, "0.005")

	_, err = f.store.GetConfirmedPayment(ctx, link.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentUnderpaid))
	assert.Equal(t, 0, f.notifier.count(models.EventPaymentConfirmed))

	payload := f.notifier.last(models.EventPaymentUnderpaid)
	assert.Equal(t, "0.01", payload.Data.ExpectedAmount)
	assert.Equal(t, "0.005", payload.Data.ActualAmount)
	assert.Equal(t, "0xlow", payload.Data.TxHash)
}

func TestConfirmPayment_Failed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)
	f.mock(t, 1).MarkFailed("0xbad")

	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xbad"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmFailed, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentFailed))

	payments, err := f.portal.ListPayments(ctx, link.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestConfirmPayment_PendingThenConfirmed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)
	mock := f.mock(t, 1)
	mock.MarkPending("0xslow")

	for i := 0; i < 2; i++ {
		res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xslow"})
		require.NoError(t, err)
		assert.Equal(t, models.ConfirmPending, res.Status)
	}
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentPending))
	status, err := f.portal.GetStatus(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnpaid, status)

	mock.MarkConfirmed("0xslow")
	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xslow"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmConfirmed, res.Status)

	payments, err := f.portal.ListPayments(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Confirmed)
	assert.Equal(t, res.PaymentID, payments[0].ID)
	assert.Equal(t, 1, f.notifier.count(models.EventPaymentConfirmed))
}

func TestConfirmPayment_MultiCurrency(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, func(in *models.CreatePaymentLinkInput) {
		in.PaymentOptions = []models.PaymentOption{
			{TokenSymbol: "MATIC", ChainID: 137, Amount: "25"},
			{TokenSymbol: "USDC", ChainID: 137, Amount: "20"},
			{TokenSymbol: "SOL", ChainID: 101, Amount: "0.1", RecipientAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"},
		}
	})
	f.mock(t, 137).MarkUnderpaid("0xpoly", "24")

	res, err := f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xpoly", ChainID: 137})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonPaymentUnderpaid, res.Reason)
	assert.Equal(t, "MATIC", res.TokenSymbol)
	assert.Equal(t, "25", f.notifier.last(models.EventPaymentUnderpaid).Data.ExpectedAmount)

	res, err = f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "sig1", ChainID: 101})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmConfirmed, res.Status)
	assert.Equal(t, "SOL", res.TokenSymbol)

	payment, err := f.store.GetPaymentByTxHash(ctx, 101, "sig1")
	require.NoError(t, err)
	assert.Equal(t, "0.1", payment.Amount)
	assert.Equal(t, "SOL", payment.TokenSymbol)

	res, err = f.portal.ConfirmPayment(ctx, link.ID, models.ConfirmPaymentInput{TxHash: "0xbsc", ChainID: 56})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmFailed, res.Status)
	assert.Equal(t, models.ReasonChainNotSupported, res.Reason)
}

func TestConfirmPayment_ReplayOnAnotherLink(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	first := f.createLink(t, nil)
	second := f.createLink(t, nil)

	res, err := f.portal.ConfirmPayment(ctx, first.ID, models.ConfirmPaymentInput{TxHash: "0xonce"})
	require.NoError(t, err)
	require.Equal(t, models.ConfirmConfirmed, res.Status)

	res, err = f.portal.ConfirmPayment(ctx, second.ID, models.ConfirmPaymentInput{TxHash: "0xonce"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmFailed, res.Status)
	assert.Equal(t, models.ReasonAccessDenied, res.Reason)

	decision, err := f.portal.ResolveAccess(ctx, second.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionPaymentRequired, decision.Kind)
}

func TestCreatePaymentLink_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	past := f.clock.Now().Add(-time.Minute)

	tests := []struct {
		name   string
		mutate func(*models.CreatePaymentLinkInput)
	}{
		{"zero amount", func(in *models.CreatePaymentLinkInput) { in.Price.Amount = "0" }},
		{"bad amount", func(in *models.CreatePaymentLinkInput) { in.Price.Amount = "ten" }},
		{"unsupported chain", func(in *models.CreatePaymentLinkInput) { in.Price.ChainID = 56 }},
		{"missing recipient", func(in *models.CreatePaymentLinkInput) { in.RecipientAddress = "" }},
		{"bad option amount", func(in *models.CreatePaymentLinkInput) {
			in.PaymentOptions = []models.PaymentOption{{TokenSymbol: "MATIC", ChainID: 137, Amount: "-1"}}
		}},
		{"zero max uses", func(in *models.CreatePaymentLinkInput) { in.MaxUses = intPtr(0) }},
		{"expiry in the past", func(in *models.CreatePaymentLinkInput) { in.ExpiresAt = &past }},
		{"unknown interval", func(in *models.CreatePaymentLinkInput) {
			in.Subscription = &models.SubscriptionConfig{Interval: "hourly"}
		}},
		{"zero max cycles", func(in *models.CreatePaymentLinkInput) {
			in.Subscription = &models.SubscriptionConfig{Interval: models.IntervalDaily, MaxCycles: intPtr(0)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := models.CreatePaymentLinkInput{
				TargetURL:        "https://example.com",
				Price:            models.Price{Amount: "1", TokenSymbol: "ETH", ChainID: 1},
				RecipientAddress: recipient,
			}
			tt.mutate(&input)
			_, err := f.portal.CreatePaymentLink(context.Background(), input)
			perr, ok := models.AsProtocolError(err)
			require.True(t, ok, "expected protocol error, got %v", err)
			assert.Equal(t, models.KindInvalid, perr.Kind)
		})
	}
}

func TestDeletePaymentLink(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	link := f.createLink(t, nil)

	require.NoError(t, f.portal.DeletePaymentLink(ctx, link.ID))
	_, err := f.portal.GetPaymentLink(ctx, link.ID)
	perr, ok := models.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindNotFound, perr.Kind)

	err = f.portal.DeletePaymentLink(ctx, link.ID)
	perr, ok = models.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindNotFound, perr.Kind)
}
