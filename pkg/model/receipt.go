package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Action string

const (
	ActionCreate         Action = "create"
	ActionConfirm        Action = "confirm"
	ActionModifyReceiver Action = "modify_receiver"
	ActionCancel         Action = "cancel"
)

// Receipt is the durable inclusion proof of a submitted write.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber *big.Int    `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	Success     bool        `json:"success"`
}
