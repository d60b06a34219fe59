package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type relayMessage struct {
	BoardID string `json:"boardId"`
}

// Relay carries board update notifications between instances over Redis
// pub/sub.
type Relay struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger
}

func NewRelay(rc *redis.Client, channel string, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{rc: rc, channel: channel, logger: logger}
}

// Publish announces that boardID changed.
func (r *Relay) Publish(ctx context.Context, boardID string) error {
	data, err := sonic.Marshal(relayMessage{BoardID: boardID})
	if err != nil {
		return err
	}
	return r.rc.Publish(ctx, r.channel, data).Err()
}

// Run subscribes to the channel and hands every board id to deliver until
// ctx is done, resubscribing when the subscription drops.
func (r *Relay) Run(ctx context.Context, deliver func(boardID string)) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var m relayMessage
				if err := sonic.UnmarshalString(msg.Payload, &m); err != nil || m.BoardID == "" {
					r.logger.WithField("payload", msg.Payload).Warn("unable to parse board update")
					continue
				}
				deliver(m.BoardID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
