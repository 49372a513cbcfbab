package model

import "github.com/shopspring/decimal"

// Stats is an aggregate reported by the ledger, either for one address or for
// the whole protocol. Volume excludes fees.
type Stats struct {
	Count  uint64          `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}
