package publish

import (
	"context"

	"github.com/joripage/transfer-orders/pkg/txn"
)

// JSONProducer is implemented by the kafka producer.
type JSONProducer interface {
	PublishJSON(ctx context.Context, key string, v any, headers map[string]string) error
}

// TxEventSink forwards transaction lifecycle events to Kafka, keyed by
// transaction hash so the events of one transaction stay ordered.
type TxEventSink struct {
	producer JSONProducer
}

func NewTxEventSink(producer JSONProducer) *TxEventSink {
	return &TxEventSink{producer: producer}
}

func (s *TxEventSink) Emit(ctx context.Context, ev txn.Event) error {
	return s.producer.PublishJSON(ctx, ev.Key(), ev, map[string]string{
		"type":       string(ev.Type),
		"action":     string(ev.Action),
		"request_id": ev.RequestID,
	})
}
