package blockchain

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/core-coin/payportal/internal/metrics"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

// Registry maps chain ids to verifiers. It is built once at startup.
type Registry struct {
	logger    *logger.Logger
	recorder  metrics.Recorder
	verifiers map[int64]models.Verifier
}

// NewRegistry creates one verifier per configured chain. Chains whose RPC
// URL is "mock" get a MockVerifier.
func NewRegistry(chains []models.ChainConfig, tokens models.TokenResolver, recorder metrics.Recorder, logger *logger.Logger) (*Registry, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	r := &Registry{
		logger:    logger,
		recorder:  recorder,
		verifiers: make(map[int64]models.Verifier, len(chains)),
	}

	for _, c := range chains {
		chain := c.Normalized()
		if _, ok := r.verifiers[chain.ChainID]; ok {
			return nil, fmt.Errorf("duplicate chain id %d", chain.ChainID)
		}

		var v models.Verifier
		switch {
		case chain.IsMock():
			v = NewMockVerifier(chain)
		case chain.Type == models.ChainTypeEVM:
			evm, err := NewEVMVerifier(chain, tokens, logger)
			if err != nil {
				return nil, err
			}
			v = evm
		case chain.Type == models.ChainTypeCore:
			core, err := NewCoreVerifier(chain, tokens, logger)
			if err != nil {
				return nil, err
			}
			v = core
		case chain.Type == models.ChainTypeSolana:
			v = NewSolanaVerifier(chain, tokens, logger)
		default:
			return nil, fmt.Errorf("chain %d: unknown chain type %q", chain.ChainID, chain.Type)
		}

		r.verifiers[chain.ChainID] = v
		logger.Infow("Registered verifier", "chainId", chain.ChainID, "name", chain.Name, "type", chain.Type, "mock", chain.IsMock())
	}
	return r, nil
}

// Get returns the verifier of chainID.
func (r *Registry) Get(chainID int64) (models.Verifier, bool) {
	v, ok := r.verifiers[chainID]
	return v, ok
}

// Mock returns the mock verifier of chainID, if the chain is mocked.
func (r *Registry) Mock(chainID int64) (*MockVerifier, bool) {
	v, ok := r.verifiers[chainID].(*MockVerifier)
	return v, ok
}

// Chains lists the configured chains ordered by id.
func (r *Registry) Chains() []models.ChainConfig {
	chains := make([]models.ChainConfig, 0, len(r.verifiers))
	for _, v := range r.verifiers {
		chains = append(chains, v.Chain())
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })
	return chains
}

// Verify runs the chain's verifier. RPC errors never escape: they become a
// failed result carrying the error message.
func (r *Registry) Verify(ctx context.Context, chainID int64, req models.VerifyRequest) *models.VerifyResult {
	chain := strconv.FormatInt(chainID, 10)
	v, ok := r.verifiers[chainID]
	if !ok {
		return failedResult("chain %d is not supported", chainID)
	}

	start := time.Now()
	res, err := v.VerifyPayment(ctx, req)
	r.recorder.ObserveLatency(metrics.Verification, time.Since(start), map[string]string{"chain": chain})
	if err != nil {
		r.logger.Warnw("Verification RPC error", "chainId", chainID, "txHash", req.TxHash, "error", err)
		res = failedResult("verification error: %v", err)
	}
	r.recorder.IncCounter(metrics.Verification, map[string]string{"chain": chain, "status": string(res.Status)})
	return res
}
