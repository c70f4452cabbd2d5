package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	gocore "github.com/core-coin/go-core/v2"
	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/core/types"
	"github.com/core-coin/go-core/v2/xcbclient"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

var coreTxHashPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// coreRPC is the subset of xcbclient.Client used by CoreVerifier.
type coreRPC interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// CoreVerifier verifies XCB and CBC20 payments on Core Blockchain.
type CoreVerifier struct {
	logger *logger.Logger
	chain  models.ChainConfig
	client coreRPC
	signer types.Signer
	tokens models.TokenResolver
}

// NewCoreVerifier connects to the Core RPC server. The chain id is used as network id.
func NewCoreVerifier(chain models.ChainConfig, tokens models.TokenResolver, logger *logger.Logger) (*CoreVerifier, error) {
	client, err := xcbclient.Dial(chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	return newCoreVerifier(chain, client, tokens, logger), nil
}

func newCoreVerifier(chain models.ChainConfig, client coreRPC, tokens models.TokenResolver, logger *logger.Logger) *CoreVerifier {
	return &CoreVerifier{
		logger: logger,
		chain:  chain,
		client: client,
		signer: types.NewNucleusSigner(big.NewInt(chain.ChainID)),
		tokens: tokens,
	}
}

func (g *CoreVerifier) Chain() models.ChainConfig {
	return g.chain
}

func (g *CoreVerifier) VerifyPayment(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	if !coreTxHashPattern.MatchString(req.TxHash) {
		return failedResult("invalid transaction hash %q", req.TxHash), nil
	}
	hash := common.HexToHash(req.TxHash)

	tx, isPending, err := g.client.TransactionByHash(ctx, hash)
	if errors.Is(err, gocore.NotFound) {
		return notFoundResult("transaction not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if isPending {
		return pendingResult("transaction is in the mempool"), nil
	}

	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, gocore.NotFound) {
		return pendingResult("transaction receipt not available yet"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return failedResult("transaction reverted"), nil
	}

	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if depth := confirmationDepth(head.Number.Uint64(), receipt.BlockNumber); depth < uint64(g.chain.Confirmations) {
		return pendingResult(fmt.Sprintf("%d of %d confirmations", depth, g.chain.Confirmations)), nil
	}

	var from string
	if sender, err := g.signer.Sender(tx); err == nil {
		from = sender.Hex()
	}
	if tx.To() == nil {
		return failedResult("contract creation is not a payment"), nil
	}

	if !isTokenRequest(g.chain, req) {
		return EvaluateTransfers(req, nativeDecimals, []Transfer{{
			From:  from,
			To:    tx.To().Hex(),
			Value: tx.Value(),
		}}), nil
	}

	token, ok := g.tokens.Resolve(g.chain.ChainID, req.TokenSymbol)
	if !ok {
		return failedResult("token %s is not configured on chain %d", req.TokenSymbol, g.chain.ChainID), nil
	}
	tokenAddr, err := common.HexToAddress(token.Address)
	if err != nil {
		return failedResult("invalid %s contract address: %v", req.TokenSymbol, err), nil
	}
	if *tx.To() != tokenAddr {
		return failedResult("transaction is not a %s transfer", req.TokenSymbol), nil
	}
	transfers := DecodeCBC20Transfers(from, tx.Data())
	if len(transfers) == 0 {
		return failedResult("transaction contains no %s transfer", req.TokenSymbol), nil
	}
	return EvaluateTransfers(req, int32(token.Decimals), transfers), nil
}
