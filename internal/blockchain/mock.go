package blockchain

import (
	"context"
	"sync"

	"github.com/core-coin/payportal/internal/models"
)

const (
	mockEVMSender    = "0x000000000000000000000000000000000000dEaD"
	mockSolanaSender = "11111111111111111111111111111111"
)

// MockVerifier resolves transactions from in-memory sets without any network
// call. Unknown references are reported as confirmed.
type MockVerifier struct {
	chain models.ChainConfig

	mu        sync.RWMutex
	confirmed map[string]struct{}
	pending   map[string]struct{}
	failed    map[string]struct{}
	underpaid map[string]string
}

func NewMockVerifier(chain models.ChainConfig) *MockVerifier {
	m := &MockVerifier{chain: chain}
	m.Reset()
	return m
}

func (m *MockVerifier) Chain() models.ChainConfig {
	return m.chain
}

// Reset forgets every marked transaction.
func (m *MockVerifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = make(map[string]struct{})
	m.pending = make(map[string]struct{})
	m.failed = make(map[string]struct{})
	m.underpaid = make(map[string]string)
}

func (m *MockVerifier) MarkConfirmed(txHash string) {
	m.mark(txHash, m.confirmed)
}

func (m *MockVerifier) MarkPending(txHash string) {
	m.mark(txHash, m.pending)
}

func (m *MockVerifier) MarkFailed(txHash string) {
	m.mark(txHash, m.failed)
}

// MarkUnderpaid makes txHash verify as a transfer of actualAmount.
func (m *MockVerifier) MarkUnderpaid(txHash, actualAmount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget(txHash)
	m.underpaid[txHash] = actualAmount
}

func (m *MockVerifier) mark(txHash string, set map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget(txHash)
	set[txHash] = struct{}{}
}

func (m *MockVerifier) forget(txHash string) {
	delete(m.confirmed, txHash)
	delete(m.pending, txHash)
	delete(m.failed, txHash)
	delete(m.underpaid, txHash)
}

func (m *MockVerifier) sender() string {
	if m.chain.Type == models.ChainTypeSolana {
		return mockSolanaSender
	}
	return mockEVMSender
}

func (m *MockVerifier) VerifyPayment(_ context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if actual, ok := m.underpaid[req.TxHash]; ok {
		return &models.VerifyResult{
			Status:       models.VerificationUnderpaid,
			ActualAmount: actual,
			FromAddress:  m.sender(),
			Message:      "paid " + actual + ", required " + req.Amount,
		}, nil
	}
	if _, ok := m.failed[req.TxHash]; ok {
		return failedResult("transaction failed"), nil
	}
	if _, ok := m.pending[req.TxHash]; ok {
		return pendingResult("transaction awaiting confirmations"), nil
	}
	return &models.VerifyResult{
		Status:       models.VerificationConfirmed,
		ActualAmount: req.Amount,
		FromAddress:  m.sender(),
	}, nil
}
