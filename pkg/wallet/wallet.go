package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/model"
)

// Wallet is the capability surface the core consumes from the user's wallet
// provider. Consumers depend on the narrower interfaces they need.
type Wallet interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params model.ChainParams) error
	SignMessage(ctx context.Context, account common.Address, message string) ([]byte, error)
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*model.Receipt, error)
}

// TxRequest is an unsigned transaction handed to the wallet for signing and
// broadcast. Gas zero lets the wallet estimate.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}
