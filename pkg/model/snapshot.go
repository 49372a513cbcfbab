package model

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Actions lists which mutating intents the presentation layer may offer for
// the selected order.
type Actions struct {
	Confirm bool `json:"confirm"`
	Modify  bool `json:"modify"`
	Cancel  bool `json:"cancel"`
}

// Snapshot is the reconciled view handed to the presentation layer. A
// Snapshot is never mutated after it is published; Clone before deriving a
// new one.
type Snapshot struct {
	Account       common.Address  `json:"account"`
	Connected     bool            `json:"connected"`
	OrderIDs      []uint64        `json:"order_ids"`
	SelectedID    *uint64         `json:"selected_id,omitempty"`
	Selected      *Order          `json:"selected,omitempty"`
	DetailPending bool            `json:"detail_pending"`
	UserStats     Stats           `json:"user_stats"`
	ProtocolStats Stats           `json:"protocol_stats"`
	Fee           decimal.Decimal `json:"fee"`
	Recent        []Order         `json:"recent"`
	RefreshedAt   time.Time       `json:"refreshed_at"`
	Actions       Actions         `json:"actions"`
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.OrderIDs = slices.Clone(s.OrderIDs)
	out.Recent = slices.Clone(s.Recent)
	if s.SelectedID != nil {
		id := *s.SelectedID
		out.SelectedID = &id
	}
	if s.Selected != nil {
		o := *s.Selected
		out.Selected = &o
	}
	return out
}

// HasOrder reports whether id is in the ledger-reported id list.
func (s Snapshot) HasOrder(id uint64) bool {
	return slices.Contains(s.OrderIDs, id)
}

// DeriveActions recomputes the enabled intents. Every terminal status disables
// all three actions, and so does a detail that is pending or belongs to a
// different id than the selection.
func (s *Snapshot) DeriveActions() {
	s.Actions = Actions{}
	if s.SelectedID == nil || s.Selected == nil || s.DetailPending {
		return
	}
	if s.Selected.ID != *s.SelectedID {
		return
	}
	s.Actions = Actions{
		Confirm: s.Selected.CanConfirm(),
		Modify:  s.Selected.CanModify(),
		Cancel:  s.Selected.CanCancel(),
	}
}
