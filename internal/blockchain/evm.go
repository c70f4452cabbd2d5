package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

const (
	// nativeDecimals is the number of decimals of wei-denominated coins.
	nativeDecimals = 18
	// erc20TransferSelector is transfer(address,uint256)
	erc20TransferSelector = "a9059cbb"
)

var (
	erc20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	txHashPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// evmRPC is the subset of ethclient.Client used by EVMVerifier.
type evmRPC interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMVerifier verifies native and ERC-20 payments on an EVM chain.
type EVMVerifier struct {
	logger *logger.Logger
	chain  models.ChainConfig
	client evmRPC
	tokens models.TokenResolver
}

// NewEVMVerifier dials the chain's RPC endpoint.
func NewEVMVerifier(chain models.ChainConfig, tokens models.TokenResolver, logger *logger.Logger) (*EVMVerifier, error) {
	client, err := ethclient.Dial(chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", chain.Name, err)
	}
	return newEVMVerifier(chain, client, tokens, logger), nil
}

func newEVMVerifier(chain models.ChainConfig, client evmRPC, tokens models.TokenResolver, logger *logger.Logger) *EVMVerifier {
	return &EVMVerifier{logger: logger, chain: chain, client: client, tokens: tokens}
}

func (v *EVMVerifier) Chain() models.ChainConfig {
	return v.chain
}

func (v *EVMVerifier) VerifyPayment(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	if !txHashPattern.MatchString(req.TxHash) {
		return failedResult("invalid transaction hash %q", req.TxHash), nil
	}
	hash := common.HexToHash(req.TxHash)

	tx, isPending, err := v.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return notFoundResult("transaction not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if isPending {
		return pendingResult("transaction is in the mempool"), nil
	}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return pendingResult("transaction receipt not available yet"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return failedResult("transaction reverted"), nil
	}

	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	if depth := confirmationDepth(head, receipt.BlockNumber); depth < uint64(v.chain.Confirmations) {
		return pendingResult(fmt.Sprintf("%d of %d confirmations", depth, v.chain.Confirmations)), nil
	}

	from := evmSender(tx)

	if !isTokenRequest(v.chain, req) {
		if tx.To() == nil {
			return failedResult("contract creation is not a payment"), nil
		}
		return EvaluateTransfers(req, nativeDecimals, []Transfer{{
			From:  from,
			To:    tx.To().Hex(),
			Value: tx.Value(),
		}}), nil
	}

	token, ok := v.tokens.Resolve(v.chain.ChainID, req.TokenSymbol)
	if !ok {
		return failedResult("token %s is not configured on chain %d", req.TokenSymbol, v.chain.ChainID), nil
	}
	tokenAddr := common.HexToAddress(token.Address)
	transfers := ERC20TransfersFromLogs(receipt.Logs, tokenAddr)
	if len(transfers) == 0 && tx.To() != nil && *tx.To() == tokenAddr {
		if t, ok := DecodeERC20Transfer(tx.Data()); ok {
			t.From = from
			transfers = append(transfers, t)
		}
	}
	if len(transfers) == 0 {
		return failedResult("transaction contains no %s transfer", req.TokenSymbol), nil
	}
	return EvaluateTransfers(req, int32(token.Decimals), transfers), nil
}

func confirmationDepth(head uint64, included *big.Int) uint64 {
	if included == nil || !included.IsUint64() || included.Uint64() > head {
		return 0
	}
	return head - included.Uint64() + 1
}

func evmSender(tx *types.Transaction) string {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return ""
	}
	return from.Hex()
}

// ERC20TransfersFromLogs extracts Transfer events emitted by token.
func ERC20TransfersFromLogs(logs []*types.Log, token common.Address) []Transfer {
	var transfers []Transfer
	for _, l := range logs {
		if l == nil || l.Address != token || len(l.Topics) != 3 || l.Topics[0] != erc20TransferTopic {
			continue
		}
		transfers = append(transfers, Transfer{
			From:  common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:    common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Value: new(big.Int).SetBytes(l.Data),
		})
	}
	return transfers
}

// DecodeERC20Transfer decodes the call data of transfer(address,uint256).
func DecodeERC20Transfer(data []byte) (Transfer, bool) {
	if len(data) < 4+64 || common.Bytes2Hex(data[:4]) != erc20TransferSelector {
		return Transfer{}, false
	}
	return Transfer{
		To:    common.BytesToAddress(data[4:36]).Hex(),
		Value: new(big.Int).SetBytes(data[36:68]),
	}, true
}
