package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

// WebhookQueue is the asynchronous webhook delivery queue.
type WebhookQueue interface {
	Enqueue(ctx context.Context, p *models.WebhookPayload) error
}

// AlertSender delivers a one-line operator alert to a destination.
type AlertSender interface {
	SendNotification(to, message string)
}

type alertSink struct {
	name   string
	to     string
	sender AlertSender
}

// DefaultAlertEvents are the events operators are alerted about by default.
var DefaultAlertEvents = []models.WebhookEvent{
	models.EventPaymentConfirmed,
	models.EventSubscriptionPastDue,
}

// Notificator fans protocol events out to the webhook queue and, for the
// configured alert events, to the operator's Telegram chat and mailbox.
type Notificator struct {
	logger *logger.Logger

	webhooks    WebhookQueue
	alertEvents map[models.WebhookEvent]struct{}
	sinks       []alertSink

	wg sync.WaitGroup
}

func NewNotificator(logger *logger.Logger, webhooks WebhookQueue, alertEvents []models.WebhookEvent) *Notificator {
	if len(alertEvents) == 0 {
		alertEvents = DefaultAlertEvents
	}
	n := &Notificator{
		logger:      logger,
		webhooks:    webhooks,
		alertEvents: make(map[models.WebhookEvent]struct{}, len(alertEvents)),
	}
	for _, e := range alertEvents {
		n.alertEvents[e] = struct{}{}
	}
	return n
}

// AddAlertSink registers an operator alert destination.
func (n *Notificator) AddAlertSink(name, to string, sender AlertSender) {
	if to == "" || sender == nil {
		return
	}
	n.sinks = append(n.sinks, alertSink{name: name, to: to, sender: sender})
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Notify implements models.NotificationService. It never blocks on alert
// delivery; webhook enqueue may block while the queue is full.
func (n *Notificator) Notify(ctx context.Context, payload *models.WebhookPayload) {
	if n.webhooks != nil {
		if err := n.webhooks.Enqueue(ctx, payload); err != nil {
			n.logger.Errorw("Failed to enqueue webhook", "event", payload.Event, "eventId", payload.EventID, "error", err)
		}
	}

	if _, ok := n.alertEvents[payload.Event]; !ok || len(n.sinks) == 0 {
		return
	}
	message := FormatAlert(payload)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for _, sink := range n.sinks {
			sink := sink
			n.safeCall(func() { sink.sender.SendNotification(sink.to, message) }, sink.name+"Notification")
		}
	}()
}

// Stop waits for in-flight alerts.
func (n *Notificator) Stop() {
	n.wg.Wait()
}

// FormatAlert renders a payload as a single human readable line.
func FormatAlert(p *models.WebhookPayload) string {
	parts := []string{fmt.Sprintf("[PayPortal] %s", p.Event)}
	d := p.Data
	if link := d.LinkRef(); link != nil {
		parts = append(parts, "link "+link.ID)
	}
	if d.Payment != nil {
		parts = append(parts, fmt.Sprintf("%s %s on chain %d", d.Payment.Amount, d.Payment.TokenSymbol, d.Payment.ChainID))
		parts = append(parts, "tx "+d.Payment.TxHash)
	}
	if d.Subscription != nil {
		parts = append(parts, fmt.Sprintf("subscription %s (%s) for %s", d.Subscription.ID, d.Subscription.Status, d.Subscription.SubscriberAddress))
	}
	if d.Message != "" {
		parts = append(parts, d.Message)
	}
	return strings.Join(parts, ", ")
}
