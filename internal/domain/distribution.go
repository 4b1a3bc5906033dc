package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// TotalWeightBps is the required sum of recipient weights in basis points.
const TotalWeightBps uint32 = 10_000

// Recipient pairs a bribe-sink handle with its share weight in basis points.
type Recipient struct {
	Handle    string
	WeightBps uint32
}

// RecipientConfig is the ordered fan-out list for a batch. Ordering matters:
// the last recipient absorbs rounding dust.
type RecipientConfig []Recipient

// Validate checks the config is non-empty, every handle is set, every weight
// is non-zero, and the weights sum to exactly TotalWeightBps. Violations are
// rejected as a whole; a config is never partially applied.
func (c RecipientConfig) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidRecipientConfig)
	}

	var sum uint64
	for i, r := range c {
		if strings.TrimSpace(r.Handle) == "" {
			return fmt.Errorf("%w: recipient %d has an empty handle", ErrInvalidRecipientConfig, i)
		}
		if r.WeightBps == 0 {
			return fmt.Errorf("%w: recipient %d has zero weight", ErrInvalidWeights, i)
		}
		sum += uint64(r.WeightBps)
	}

	if sum != uint64(TotalWeightBps) {
		return fmt.Errorf("%w: weights sum to %d, want %d", ErrInvalidWeights, sum, TotalWeightBps)
	}
	return nil
}

// Share is one recipient's computed cut of a period amount.
type Share struct {
	Recipient string
	Amount    *big.Int
}

// SplitByWeight splits a period amount across the config. All recipients but
// the last receive floor(total * weight / 10000); the last receives the
// remainder, so the shares always sum to exactly the input amount. The config
// must already be validated.
func SplitByWeight(total *big.Int, config RecipientConfig) []Share {
	shares := make([]Share, 0, len(config))
	if len(config) == 0 || total == nil {
		return shares
	}

	denominator := new(big.Int).SetUint64(uint64(TotalWeightBps))
	assigned := new(big.Int)
	for i, r := range config {
		var amount *big.Int
		if i == len(config)-1 {
			amount = new(big.Int).Sub(total, assigned)
		} else {
			amount = new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(r.WeightBps)))
			amount.Quo(amount, denominator)
			assigned.Add(assigned, amount)
		}
		shares = append(shares, Share{Recipient: r.Handle, Amount: amount})
	}
	return shares
}
