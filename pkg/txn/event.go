package txn

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/pkg/model"
)

type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventConfirmed EventType = "confirmed"
	EventFailed    EventType = "failed"
)

// Event is one step of a submission's lifecycle.
type Event struct {
	Type      EventType    `json:"type"`
	Action    model.Action `json:"action"`
	OrderID   *uint64      `json:"order_id,omitempty"`
	TxHash    string       `json:"tx_hash,omitempty"`
	Block     string       `json:"block,omitempty"`
	Stage     Stage        `json:"stage,omitempty"`
	Error     string       `json:"error,omitempty"`
	RequestID string       `json:"request_id"`
	Time      time.Time    `json:"time"`
}

// Key groups events of the same transaction.
func (e Event) Key() string {
	if e.TxHash != "" {
		return e.TxHash
	}
	return e.RequestID
}

// EventSink receives lifecycle events. Emit must not block for long; a
// failed emit is logged and never fails the submission.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// Observer is notified once per finished submission; metrics plug in here.
type Observer interface {
	SubmissionFinished(action model.Action, stage Stage, elapsed time.Duration, err error)
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
