// Package webhook delivers signed event payloads to a single HTTP endpoint.
//
// Events go through a bounded queue drained by one worker, so deliveries
// happen strictly in enqueue order with at most one request in flight. A
// full queue blocks Enqueue instead of growing memory. The queue is not
// durable: events still queued when the manager stops are dropped and
// counted in the shutdown log.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/core-coin/payportal/internal/metrics"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

const (
	UserAgent = "PayPortal-Webhook/1.0"

	HeaderEvent     = "X-PayPortal-Event"
	HeaderEventID   = "X-PayPortal-Event-Id"
	HeaderTimestamp = "X-PayPortal-Timestamp"
	HeaderSignature = "X-PayPortal-Signature"

	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	DefaultQueueSize  = 256
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("webhook manager stopped")

type Config struct {
	URL    string
	Secret string
	// Events is the allow list; empty means every event.
	Events  []models.WebhookEvent
	Headers map[string]string
	// Timeout applies to each attempt.
	Timeout time.Duration
	// Retries is the total number of attempts per event.
	Retries int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	QueueSize  int
}

type Manager struct {
	logger   *logger.Logger
	recorder metrics.Recorder
	cfg      Config
	client   *http.Client
	events   map[models.WebhookEvent]struct{}

	queue  chan *models.WebhookPayload
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewManager(cfg Config, recorder metrics.Recorder, logger *logger.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	m := &Manager{
		logger:   logger,
		recorder: recorder,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		queue:    make(chan *models.WebhookPayload, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
	if len(cfg.Events) > 0 {
		m.events = make(map[models.WebhookEvent]struct{}, len(cfg.Events))
		for _, e := range cfg.Events {
			m.events[e] = struct{}{}
		}
	}
	return m
}

// Enabled reports whether a webhook URL is configured.
func (m *Manager) Enabled() bool {
	return m.cfg.URL != ""
}

// IsEventEnabled reports whether event passes the allow list.
func (m *Manager) IsEventEnabled(event models.WebhookEvent) bool {
	if m.events == nil {
		return true
	}
	_, ok := m.events[event]
	return ok
}

// Start launches the delivery worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Infow("Webhook worker started", "url", m.cfg.URL)
		for {
			// stop wins over pending events
			select {
			case <-m.stopCh:
				return
			default:
			}
			select {
			case <-m.stopCh:
				return
			case p := <-m.queue:
				m.Send(context.Background(), p)
			}
		}
	}()
}

// Stop lets the in-flight delivery finish, then drops whatever is still queued.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	dropped := 0
drain:
	for {
		select {
		case <-m.queue:
			dropped++
		default:
			break drain
		}
	}
	if dropped > 0 {
		m.logger.Warnw("Webhook worker stopped, dropped queued events", "dropped", dropped)
	} else {
		m.logger.Info("Webhook worker stopped")
	}
}

// Enqueue schedules p for asynchronous delivery. Filtered events and a
// missing URL are silently skipped. It blocks while the queue is full.
func (m *Manager) Enqueue(ctx context.Context, p *models.WebhookPayload) error {
	if !m.Enabled() || !m.IsEventEnabled(p.Event) {
		return nil
	}
	select {
	case <-m.stopCh:
		return ErrStopped
	default:
	}
	select {
	case m.queue <- p:
		return nil
	case <-m.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers p synchronously with retries. It never returns an error:
// the outcome is described by the result.
func (m *Manager) Send(ctx context.Context, p *models.WebhookPayload) models.DeliveryResult {
	start := time.Now()
	if !m.Enabled() || !m.IsEventEnabled(p.Event) {
		return models.DeliveryResult{Success: true, Skipped: true}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return models.DeliveryResult{Error: fmt.Sprintf("failed to encode payload: %v", err), Duration: time.Since(start)}
	}

	var result models.DeliveryResult
	for attempt := 1; attempt <= m.cfg.Retries; attempt++ {
		result.Attempts = attempt
		result.StatusCode, err = m.post(ctx, p, body)
		if err == nil {
			result.Success = true
			result.Error = ""
			break
		}
		result.Error = err.Error()
		m.logger.Warnw("Webhook delivery attempt failed", "event", p.Event, "eventId", p.EventID, "attempt", attempt, "error", err)

		if attempt == m.cfg.Retries {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * m.cfg.RetryDelay):
		case <-ctx.Done():
			result.Error = fmt.Sprintf("%s (gave up: %v)", result.Error, ctx.Err())
			attempt = m.cfg.Retries
		case <-m.stopCh:
			result.Error = fmt.Sprintf("%s (gave up: shutting down)", result.Error)
			attempt = m.cfg.Retries
		}
	}
	result.Duration = time.Since(start)

	status := "success"
	if !result.Success {
		status = "failure"
		m.logger.Errorw("Webhook delivery failed", "event", p.Event, "eventId", p.EventID, "attempts", result.Attempts, "error", result.Error)
	} else {
		m.logger.Debugw("Webhook delivered", "event", p.Event, "eventId", p.EventID, "attempts", result.Attempts)
	}
	m.recorder.IncCounter(metrics.WebhookDelivery, map[string]string{"status": status})
	m.recorder.ObserveLatency(metrics.WebhookDelivery, result.Duration, nil)
	return result
}

func (m *Manager) post(ctx context.Context, p *models.WebhookPayload, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	for k, v := range m.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, string(p.Event))
	req.Header.Set(HeaderEventID, p.EventID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(p.Timestamp.Unix(), 10))
	if m.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, m.cfg.Secret))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
