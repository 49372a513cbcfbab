package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Contract is the raw on-chain surface: integer ids, wei amounts, uint8
// statuses. Gateway normalizes it for the rest of the client.
type Contract interface {
	GetOrder(ctx context.Context, id *big.Int) (RawOrder, error)
	GetOrderStatus(ctx context.Context, id *big.Int) (uint8, error)
	GetOrderIDs(ctx context.Context, owner common.Address) ([]*big.Int, error)
	GetUserStats(ctx context.Context, user common.Address) (RawStats, error)
	GetProtocolStats(ctx context.Context) (RawStats, error)
	Fee(ctx context.Context) (*big.Int, error)

	CreateOrder(ctx context.Context, opts TxOpts, receiver common.Address) (common.Hash, error)
	ConfirmOrder(ctx context.Context, opts TxOpts, id *big.Int) (common.Hash, error)
	ModifyReceiver(ctx context.Context, opts TxOpts, id *big.Int, receiver common.Address) (common.Hash, error)
	CancelOrder(ctx context.Context, opts TxOpts, id *big.Int) (common.Hash, error)
}

type TxOpts struct {
	From     common.Address
	Value    *big.Int
	GasLimit uint64
}

type RawOrder struct {
	Receiver  common.Address
	Amount    *big.Int
	CreatedAt *big.Int
}

type RawStats struct {
	Count  *big.Int
	Volume *big.Int
}
