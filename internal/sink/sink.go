// Package sink is the outbound port to bribe-sink recipients: each configured
// recipient exposes a notify capability that acknowledges an incoming share.
package sink

import (
	"context"
	"math/big"
)

// Sink notifies a recipient that a share of asset has been approved for it.
// A notify failure aborts the whole execution; there is no retry here.
type Sink interface {
	Notify(ctx context.Context, recipient, asset string, amount *big.Int) error
}
