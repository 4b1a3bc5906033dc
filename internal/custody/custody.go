// Package custody is the outbound port to the protocol treasury service that
// holds escrowed reward tokens. The scheduler never touches balances
// directly; it only instructs the custody service to move or approve value.
package custody

import (
	"context"
	"math/big"
)

// Custody moves and approves reward-token value on behalf of the scheduler.
type Custody interface {
	// TransferIn escrows amount of asset from the depositor into scheduler
	// custody.
	TransferIn(ctx context.Context, from, asset string, amount *big.Int) error
	// TransferOut releases amount of asset from scheduler custody to a
	// recipient, used by the stopped-batch sweep path.
	TransferOut(ctx context.Context, to, asset string, amount *big.Int) error
	// Approve grants a bribe sink an allowance it can pull when notified.
	Approve(ctx context.Context, spender, asset string, amount *big.Int) error
}
