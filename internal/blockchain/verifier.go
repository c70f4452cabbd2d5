package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/amount"
	"github.com/core-coin/payportal/pkg/validation"
)

// Transfer is a value movement extracted from a transaction.
type Transfer struct {
	From  string
	To    string
	Value *big.Int
}

func notFoundResult(msg string) *models.VerifyResult {
	return &models.VerifyResult{Status: models.VerificationNotFound, Message: msg}
}

func pendingResult(msg string) *models.VerifyResult {
	return &models.VerifyResult{Status: models.VerificationPending, Message: msg}
}

func failedResult(format string, args ...interface{}) *models.VerifyResult {
	return &models.VerifyResult{Status: models.VerificationFailed, Message: fmt.Sprintf(format, args...)}
}

// isTokenRequest reports whether req asks for a token rather than the chain's native coin.
func isTokenRequest(chain models.ChainConfig, req models.VerifyRequest) bool {
	return req.TokenSymbol != "" && !strings.EqualFold(req.TokenSymbol, chain.Symbol)
}

// EvaluateTransfers compares the transfers found in a transaction against the
// expected payment. Values are in base units with the given decimals.
// Everything sent to the recipient counts towards the amount.
func EvaluateTransfers(req models.VerifyRequest, decimals int32, transfers []Transfer) *models.VerifyResult {
	required, err := amount.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return failedResult("invalid expected amount %q: %v", req.Amount, err)
	}

	paid := new(big.Int)
	var from string
	matched := false
	for _, t := range transfers {
		if t.Value == nil || !validation.SameAddress(t.To, req.Recipient) {
			continue
		}
		matched = true
		paid.Add(paid, t.Value)
		if from == "" {
			from = t.From
		}
	}

	if !matched {
		res := &models.VerifyResult{
			Status:       models.VerificationUnderpaid,
			ActualAmount: "0",
			Message:      "no transfer to the expected recipient",
		}
		if len(transfers) > 0 {
			res.FromAddress = transfers[0].From
			if transfers[0].Value != nil {
				res.ActualAmount = amount.FromBaseUnits(transfers[0].Value, decimals)
			}
			res.Message = fmt.Sprintf("transfer went to %s, expected %s", transfers[0].To, req.Recipient)
		}
		return res
	}

	actual := amount.FromBaseUnits(paid, decimals)
	if paid.Cmp(required) < 0 {
		return &models.VerifyResult{
			Status:       models.VerificationUnderpaid,
			ActualAmount: actual,
			FromAddress:  from,
			Message:      fmt.Sprintf("paid %s, required %s", actual, req.Amount),
		}
	}
	return &models.VerifyResult{
		Status:       models.VerificationConfirmed,
		ActualAmount: actual,
		FromAddress:  from,
	}
}
