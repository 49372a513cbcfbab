package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "transfer-orders:snapshots"

// Publisher is the redis command the snapshot fan-out needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// SnapshotPublisher pushes every published store snapshot to a redis channel
// so out-of-process views can follow the session.
type SnapshotPublisher struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  *logging.Logger
}

func NewSnapshotPublisher(client Publisher, channel string, logger *logging.Logger) *SnapshotPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SnapshotPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.Named("snapshot_publisher"),
	}
}

// OnSnapshot matches store.Listener. Failures are logged only.
func (p *SnapshotPublisher) OnSnapshot(snap model.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, snap); err != nil {
		p.logger.Warn(ctx, "publish snapshot fail", zap.String("channel", p.channel), zap.Error(err))
	}
}

func (p *SnapshotPublisher) Publish(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}
