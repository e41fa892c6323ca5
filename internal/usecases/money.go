package usecases

import (
	"math/big"
	"strings"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

var (
	weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	// Accepted request range: [1e-6, 1e6] ether, expressed in wei.
	MinTransferWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
	MaxTransferWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
)

// EtherToWei converts a decimal ether value into wei.
func EtherToWei(ether *big.Float) *big.Int {
	wei := new(big.Float).Mul(ether, weiPerEther)
	result, _ := wei.Int(nil)
	return result
}

// WeiToEther converts wei into a decimal ether value.
func WeiToEther(wei *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther)
}

// FormatWei renders a wei amount as a trimmed decimal ether string for
// user-facing summaries.
func FormatWei(wei *big.Int) string {
	s := WeiToEther(wei).Text('f', 18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// ParseAmount parses a user-supplied decimal ether amount and enforces the
// accepted range. All failures are validation errors naming the amount field.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &entities.ValidationError{Field: "amount", Reason: "amount is required"}
	}

	ether, ok := new(big.Float).SetString(trimmed)
	if !ok {
		return nil, &entities.ValidationError{Field: "amount", Reason: "not a number: " + trimmed}
	}

	if ether.Sign() <= 0 {
		return nil, &entities.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	wei := EtherToWei(ether)
	if wei.Cmp(MinTransferWei) < 0 {
		return nil, &entities.ValidationError{Field: "amount", Reason: "below minimum of 0.000001"}
	}
	if wei.Cmp(MaxTransferWei) > 0 {
		return nil, &entities.ValidationError{Field: "amount", Reason: "above maximum of 1000000"}
	}

	return wei, nil
}
