package notificator

import (
	"context"
	"errors"
	"net/smtp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

type recordingQueue struct {
	mu       sync.Mutex
	payloads []*models.WebhookPayload
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, p *models.WebhookPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, p)
	return q.err
}

type recordingSender struct {
	mu       sync.Mutex
	messages map[string][]string
	panics   bool
}

func (s *recordingSender) SendNotification(to, message string) {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages == nil {
		s.messages = make(map[string][]string)
	}
	s.messages[to] = append(s.messages[to], message)
}

func confirmedPayload() *models.WebhookPayload {
	return &models.WebhookPayload{
		Event:   models.EventPaymentConfirmed,
		EventID: "evt-1",
		Data: models.WebhookData{
			Type:    "payment",
			Link:    &models.PaymentLink{ID: "l1"},
			Payment: &models.Payment{Amount: "0.01", TokenSymbol: "ETH", ChainID: 1, TxHash: "0xabc"},
		},
	}
}

func TestNotify_EnqueuesAndAlerts(t *testing.T) {
	queue := &recordingQueue{}
	sender := &recordingSender{}
	n := NewNotificator(logger.NewNop(), queue, nil)
	n.AddAlertSink("telegram", "chat-1", sender)
	n.AddAlertSink("email", "", sender)

	n.Notify(context.Background(), confirmedPayload())
	n.Notify(context.Background(), &models.WebhookPayload{Event: models.EventLinkCreated, Data: models.WebhookData{Link: &models.PaymentLink{ID: "l1"}}})
	n.Stop()

	assert.Len(t, queue.payloads, 2)
	require.Len(t, sender.messages["chat-1"], 1)
	assert.Equal(t, "[PayPortal] payment.confirmed, link l1, 0.01 ETH on chain 1, tx 0xabc", sender.messages["chat-1"][0])
}

func TestNotify_SurvivesFailingSinks(t *testing.T) {
	queue := &recordingQueue{err: errors.New("stopped")}
	good := &recordingSender{}
	n := NewNotificator(logger.NewNop(), queue, []models.WebhookEvent{models.EventPaymentConfirmed})
	n.AddAlertSink("broken", "x", &recordingSender{panics: true})
	n.AddAlertSink("good", "y", good)

	n.Notify(context.Background(), confirmedPayload())
	n.Stop()

	assert.Len(t, good.messages["y"], 1)
}

func TestEmailNotificator(t *testing.T) {
	e := NewEmailNotificator(logger.NewNop(), "smtp.example.com", 587, "user", "pass", "alerts@example.com")
	var gotAddr string
	var gotMsg []byte
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "alerts@example.com", from)
		assert.Equal(t, []string{"ops@example.com"}, to)
		return nil
	}

	e.SendNotification("ops@example.com", "hello")
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: PayPortal notification")
	assert.Contains(t, string(gotMsg), "\r\n\r\nhello")
}
