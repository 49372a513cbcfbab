package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderStatus mirrors the uint8 enum stored by the contract.
type OrderStatus uint8

const (
	StatusCancelled OrderStatus = 0
	StatusCreated   OrderStatus = 1
	StatusCompleted OrderStatus = 2
)

var orderStatusNames = map[OrderStatus]string{
	StatusCancelled: "CANCELLED",
	StatusCreated:   "CREATED",
	StatusCompleted: "COMPLETED",
}

// ParseOrderStatus converts the raw on-chain value, rejecting anything the
// contract is not known to emit.
func ParseOrderStatus(raw uint8) (OrderStatus, error) {
	s := OrderStatus(raw)
	if _, ok := orderStatusNames[s]; !ok {
		return 0, fmt.Errorf("unknown order status %d", raw)
	}
	return s, nil
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	for status, name := range orderStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown order status %q", text)
}

// IsTerminal reports whether the ledger will never move the order again.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Order struct {
	ID        uint64          `json:"id"`
	Receiver  common.Address  `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	Status    OrderStatus     `json:"status"`
}

func (o *Order) CanConfirm() bool {
	return o.Status == StatusCreated
}

func (o *Order) CanModify() bool {
	return o.Status == StatusCreated
}

func (o *Order) CanCancel() bool {
	return o.Status == StatusCreated
}
