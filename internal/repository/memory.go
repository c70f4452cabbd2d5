package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/core-coin/payportal/internal/models"
)

// MemoryStorage is an in-process models.Storage. All operations are
// serialised by one mutex, which makes the get-or-create operations atomic.
// Entities are copied on the way in and out so callers never share state.
type MemoryStorage struct {
	mu sync.RWMutex

	links         map[string]*models.PaymentLink
	payments      map[string]*models.Payment
	paymentsByTx  map[txKey]string
	subscriptions map[string]*models.Subscription
	subsByAddress map[subKey]string
	locks         map[string]*models.AppLock
}

type txKey struct {
	chainID int64
	txHash  string
}

type subKey struct {
	linkID  string
	address string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		links:         make(map[string]*models.PaymentLink),
		payments:      make(map[string]*models.Payment),
		paymentsByTx:  make(map[txKey]string),
		subscriptions: make(map[string]*models.Subscription),
		subsByAddress: make(map[subKey]string),
		locks:         make(map[string]*models.AppLock),
	}
}

func copyLink(l *models.PaymentLink) *models.PaymentLink {
	c := *l
	if l.PaymentOptions != nil {
		c.PaymentOptions = append([]models.PaymentOption(nil), l.PaymentOptions...)
	}
	if l.Subscription != nil {
		sc := *l.Subscription
		c.Subscription = &sc
	}
	return &c
}

func copyPayment(p *models.Payment) *models.Payment {
	c := *p
	return &c
}

func copySubscription(s *models.Subscription) *models.Subscription {
	c := *s
	return &c
}

func (m *MemoryStorage) CreatePaymentLink(_ context.Context, link *models.PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.ID]; ok {
		return models.ErrAlreadyExists
	}
	m.links[link.ID] = copyLink(link)
	return nil
}

func (m *MemoryStorage) GetPaymentLink(_ context.Context, id string) (*models.PaymentLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyLink(link), nil
}

func (m *MemoryStorage) UpdatePaymentLink(_ context.Context, link *models.PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.ID]; !ok {
		return models.ErrNotFound
	}
	m.links[link.ID] = copyLink(link)
	return nil
}

func (m *MemoryStorage) DeletePaymentLink(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.links, id)
	return nil
}

func (m *MemoryStorage) ListPaymentLinks(_ context.Context) ([]*models.PaymentLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	links := make([]*models.PaymentLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, copyLink(l))
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (m *MemoryStorage) IncrementLinkUsage(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	link.UsedCount++
	link.UpdatedAt = time.Now()
	return link.UsedCount, nil
}

func (m *MemoryStorage) GetOrCreatePayment(_ context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := txKey{chainID: payment.ChainID, txHash: payment.TxHash}
	if id, ok := m.paymentsByTx[key]; ok {
		return copyPayment(m.payments[id]), false, nil
	}
	m.payments[payment.ID] = copyPayment(payment)
	m.paymentsByTx[key] = payment.ID
	return copyPayment(payment), true, nil
}

func (m *MemoryStorage) GetPaymentByTxHash(_ context.Context, chainID int64, txHash string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.paymentsByTx[txKey{chainID: chainID, txHash: txHash}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyPayment(m.payments[id]), nil
}

func (m *MemoryStorage) GetConfirmedPayment(_ context.Context, linkID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.Payment
	for _, p := range m.payments {
		if p.PaymentLinkID != linkID || !p.Confirmed {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return copyPayment(found), nil
}

func (m *MemoryStorage) MarkPaymentConfirmed(_ context.Context, id string, fromAddress, amount string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if p.Confirmed {
		return false, nil
	}
	p.Confirmed = true
	p.ConfirmedAt = &at
	if fromAddress != "" {
		p.FromAddress = fromAddress
	}
	if amount != "" {
		p.Amount = amount
	}
	return true, nil
}

func (m *MemoryStorage) ListPayments(_ context.Context, linkID string) ([]*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payments := make([]*models.Payment, 0)
	for _, p := range m.payments {
		if linkID == "" || p.PaymentLinkID == linkID {
			payments = append(payments, copyPayment(p))
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

func (m *MemoryStorage) CreateSubscription(_ context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subKey{linkID: sub.PaymentLinkID, address: sub.SubscriberAddress}
	if id, ok := m.subsByAddress[key]; ok {
		return copySubscription(m.subscriptions[id]), false, nil
	}
	m.subscriptions[sub.ID] = copySubscription(sub)
	m.subsByAddress[key] = sub.ID
	return copySubscription(sub), true, nil
}

func (m *MemoryStorage) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copySubscription(sub), nil
}

func (m *MemoryStorage) GetSubscriptionByAddress(_ context.Context, linkID, address string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.subsByAddress[subKey{linkID: linkID, address: address}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copySubscription(m.subscriptions[id]), nil
}

func (m *MemoryStorage) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[sub.ID]; !ok {
		return models.ErrNotFound
	}
	m.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (m *MemoryStorage) ListSubscriptions(_ context.Context, linkID string) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]*models.Subscription, 0)
	for _, s := range m.subscriptions {
		if linkID == "" || s.PaymentLinkID == linkID {
			subs = append(subs, copySubscription(s))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (m *MemoryStorage) GetSubscriptionsDue(_ context.Context, before time.Time) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	due := make([]*models.Subscription, 0)
	for _, s := range m.subscriptions {
		if s.Status != models.SubscriptionActive && s.Status != models.SubscriptionPastDue {
			continue
		}
		if s.NextPaymentDue.Before(before) {
			due = append(due, copySubscription(s))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPaymentDue.Before(due[j].NextPaymentDue) })
	return due, nil
}

// TryLock implements models.Locker for single-process deployments.
func (m *MemoryStorage) TryLock(_ context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if l, ok := m.locks[name]; ok && l.InstanceID != instanceID && l.ExpiresAt > now.Unix() {
		return false, nil
	}
	m.locks[name] = &models.AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	return true, nil
}

func (m *MemoryStorage) Unlock(_ context.Context, name, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok && l.InstanceID == instanceID {
		delete(m.locks, name)
	}
	return nil
}
