package blockchain

import (
	"math/big"

	"github.com/core-coin/go-core/v2/common"
)

const (
	// transfer(address,uint256)
	cbc20Transfer = "4b40e901"
	// batchTransfer(address[],uint256[])
	cbc20BatchTransfer = "e86e7c5f"
	// transferFrom(address,address,uint256)
	cbc20TransferFrom = "31f2e679"

	// wordHex is the hex length of one ABI word.
	wordHex = 64
	// coreAddressHex is the hex length of a Core address (22 bytes).
	coreAddressHex = 44
)

// DecodeCBC20Transfers decodes the CBC20 transfer calls in a transaction's
// input. sender is used as the source of transfer and batchTransfer.
func DecodeCBC20Transfers(sender string, data []byte) []Transfer {
	input := common.Bytes2Hex(data)
	if len(input) < 8 {
		return nil
	}

	switch input[:8] {
	case cbc20Transfer:
		to, ok := addressWord(input, 0)
		value, ok2 := valueWord(input, 1)
		if !ok || !ok2 {
			return nil
		}
		return []Transfer{{From: sender, To: to, Value: value}}
	case cbc20TransferFrom:
		from, ok := addressWord(input, 0)
		to, ok2 := addressWord(input, 1)
		value, ok3 := valueWord(input, 2)
		if !ok || !ok2 || !ok3 {
			return nil
		}
		return []Transfer{{From: from, To: to, Value: value}}
	case cbc20BatchTransfer:
		count, ok := valueWord(input, 2)
		if !ok || !count.IsInt64() {
			return nil
		}
		n := int(count.Int64())
		// count words: recipients, amounts length, amounts
		if n < 0 || 8+(3+2*n+1)*wordHex > len(input) {
			return nil
		}
		transfers := make([]Transfer, 0, n)
		for i := 0; i < n; i++ {
			to, ok := addressWord(input, 3+i)
			value, ok2 := valueWord(input, 3+n+1+i)
			if !ok || !ok2 {
				return nil
			}
			transfers = append(transfers, Transfer{From: sender, To: to, Value: value})
		}
		return transfers
	}
	return nil
}

// word returns the i-th ABI word after the selector.
func word(input string, i int) (string, bool) {
	start := 8 + i*wordHex
	if start+wordHex > len(input) {
		return "", false
	}
	return input[start : start+wordHex], true
}

func addressWord(input string, i int) (string, bool) {
	w, ok := word(input, i)
	if !ok {
		return "", false
	}
	return w[wordHex-coreAddressHex:], true
}

func valueWord(input string, i int) (*big.Int, bool) {
	w, ok := word(input, i)
	if !ok {
		return nil, false
	}
	return new(big.Int).SetBytes(common.Hex2Bytes(w)), true
}
