package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

const lamportDecimals = 9

// solanaRPC is the subset of rpc.Client used by SolanaVerifier.
type solanaRPC interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// SolanaVerifier verifies SOL and SPL token payments.
type SolanaVerifier struct {
	logger *logger.Logger
	chain  models.ChainConfig
	client solanaRPC
	tokens models.TokenResolver
}

func NewSolanaVerifier(chain models.ChainConfig, tokens models.TokenResolver, logger *logger.Logger) *SolanaVerifier {
	return newSolanaVerifier(chain, rpc.New(chain.RPCURL), tokens, logger)
}

func newSolanaVerifier(chain models.ChainConfig, client solanaRPC, tokens models.TokenResolver, logger *logger.Logger) *SolanaVerifier {
	return &SolanaVerifier{logger: logger, chain: chain, client: client, tokens: tokens}
}

func (s *SolanaVerifier) Chain() models.ChainConfig {
	return s.chain
}

func (s *SolanaVerifier) VerifyPayment(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	sig, err := solana.SignatureFromBase58(req.TxHash)
	if err != nil {
		return failedResult("invalid transaction signature %q", req.TxHash), nil
	}

	statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	var status *rpc.SignatureStatusesResult
	if statuses != nil && len(statuses.Value) > 0 {
		status = statuses.Value[0]
	}
	if res := signatureStatusResult(status); res != nil {
		return res, nil
	}

	maxVersion := uint64(0)
	txResult, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return pendingResult("transaction not yet available"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if txResult == nil || txResult.Transaction == nil {
		return pendingResult("transaction not yet available"), nil
	}
	if txResult.Meta != nil && txResult.Meta.Err != nil {
		return failedResult("transaction failed: %v", txResult.Meta.Err), nil
	}
	tx, err := txResult.Transaction.GetTransaction()
	if err != nil {
		return failedResult("failed to decode transaction: %v", err), nil
	}

	if !isTokenRequest(s.chain, req) {
		transfers := SystemTransfers(tx)
		if len(transfers) == 0 {
			return failedResult("transaction contains no SOL transfer"), nil
		}
		return EvaluateTransfers(req, lamportDecimals, transfers), nil
	}

	token, ok := s.tokens.Resolve(s.chain.ChainID, req.TokenSymbol)
	if !ok {
		return failedResult("token %s is not configured on chain %d", req.TokenSymbol, s.chain.ChainID), nil
	}
	mint, err := solana.PublicKeyFromBase58(token.Address)
	if err != nil {
		return failedResult("invalid %s mint: %v", req.TokenSymbol, err), nil
	}
	transfers := TokenBalanceTransfers(tx, txResult.Meta, mint)
	if len(transfers) == 0 {
		return failedResult("transaction contains no %s transfer", req.TokenSymbol), nil
	}
	return EvaluateTransfers(req, int32(token.Decimals), transfers), nil
}

// signatureStatusResult maps a signature status onto a verdict. It returns
// nil when the transaction is finalized and its contents must be checked.
func signatureStatusResult(status *rpc.SignatureStatusesResult) *models.VerifyResult {
	if status == nil {
		return notFoundResult("signature not found")
	}
	if status.Err != nil {
		return failedResult("transaction failed: %v", status.Err)
	}
	if status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		return pendingResult(fmt.Sprintf("transaction is %s", status.ConfirmationStatus))
	}
	return nil
}

// SystemTransfers extracts System Program transfers from tx.
func SystemTransfers(tx *solana.Transaction) []Transfer {
	var transfers []Transfer
	keys := tx.Message.AccountKeys
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) || !keys[inst.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}

		accountMetas := make([]*solana.AccountMeta, 0, len(inst.Accounts))
		for _, idx := range inst.Accounts {
			if int(idx) >= len(keys) {
				break
			}
			pub := keys[idx]
			writable, _ := tx.Message.IsWritable(pub)
			accountMetas = append(accountMetas, &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			})
		}
		if len(accountMetas) < 2 {
			continue
		}

		sysInst, err := system.DecodeInstruction(accountMetas, inst.Data)
		if err != nil {
			continue
		}
		transfer, ok := sysInst.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		transfers = append(transfers, Transfer{
			From:  accountMetas[0].PublicKey.String(),
			To:    accountMetas[1].PublicKey.String(),
			Value: new(big.Int).SetUint64(*transfer.Lamports),
		})
	}
	return transfers
}

// TokenBalanceTransfers derives SPL transfers of mint from the balance
// changes recorded in meta, one per owner whose balance grew.
func TokenBalanceTransfers(tx *solana.Transaction, meta *rpc.TransactionMeta, mint solana.PublicKey) []Transfer {
	if meta == nil {
		return nil
	}
	pre := make(map[uint16]*big.Int)
	for _, b := range meta.PreTokenBalances {
		if b.Mint.Equals(mint) {
			pre[b.AccountIndex] = uiAmount(b.UiTokenAmount)
		}
	}

	var payer string
	if len(tx.Message.AccountKeys) > 0 {
		payer = tx.Message.AccountKeys[0].String()
	}

	var transfers []Transfer
	for _, b := range meta.PostTokenBalances {
		if !b.Mint.Equals(mint) || b.Owner == nil {
			continue
		}
		delta := uiAmount(b.UiTokenAmount)
		if before, ok := pre[b.AccountIndex]; ok {
			delta.Sub(delta, before)
		}
		if delta.Sign() <= 0 {
			continue
		}
		transfers = append(transfers, Transfer{From: payer, To: b.Owner.String(), Value: delta})
	}
	return transfers
}

func uiAmount(a *rpc.UiTokenAmount) *big.Int {
	v := new(big.Int)
	if a == nil {
		return v
	}
	if _, ok := v.SetString(a.Amount, 10); !ok {
		return new(big.Int)
	}
	return v
}
