package auditsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
)

const publishTimeout = 2 * time.Second

type redisSink struct {
	client  redis.UniversalClient
	channel string
	logger  core.Logger
	sync    bool
}

var _ audit.Sink = (*redisSink)(nil)

// NewRedisSink publishes events as JSON on a Redis pub/sub channel, in the background.
func NewRedisSink(client redis.UniversalClient, channel string, logger core.Logger) audit.Sink {
	return &redisSink{client: client, channel: channel, logger: logger}
}

// NewRedisSinkMock publishes synchronously.
func NewRedisSinkMock(client redis.UniversalClient, channel string, logger core.Logger) audit.Sink {
	return &redisSink{client: client, channel: channel, logger: logger, sync: true}
}

func (s *redisSink) Emit(ctx context.Context, evt audit.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error(fmt.Sprintf("auditsvc.redisSink: encoding %s: %v", evt.Type, err), err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	if s.sync {
		s.publish(ctx, evt.Type, payload)
		return
	}
	go s.publish(ctx, evt.Type, payload)
}

func (s *redisSink) publish(ctx context.Context, typ audit.EventType, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn(fmt.Sprintf("auditsvc.redisSink: publishing %s: %v", typ, err), err)
	}
}
