// Package broadcast funnels every outbound message through one fan-out
// channel with an explicit target set. Publishing is fire-and-forget: a
// failing publish is logged and never reaches the caller.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/pubsub"
	"github.com/SirAlabar/StarCendence-sub002/internal/types"
)

type Broadcaster struct {
	pub     pubsub.Publisher
	channel string
	logger  *zap.Logger
}

func New(pub pubsub.Publisher, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, channel: pubsub.ChannelOut, logger: logger}
}

func (b *Broadcaster) ToUser(ctx context.Context, userID, msgType string, payload any) {
	b.send(ctx, types.Broadcast{TargetUserID: userID, Message: b.wrap(msgType, payload)})
}

func (b *Broadcaster) ToUsers(ctx context.Context, userIDs []string, msgType string, payload any) {
	if len(userIDs) == 0 {
		return
	}
	b.send(ctx, types.Broadcast{UserIDs: userIDs, Message: b.wrap(msgType, payload)})
}

// Everyone targets no one explicitly; the transport fans the message out to
// all connected clients. Used only for lobby-wide events.
func (b *Broadcaster) Everyone(ctx context.Context, msgType string, payload any) {
	b.send(ctx, types.Broadcast{Message: b.wrap(msgType, payload)})
}

func (b *Broadcaster) wrap(msgType string, payload any) types.Message {
	return types.Message{Type: msgType, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

func (b *Broadcaster) send(ctx context.Context, bc types.Broadcast) {
	data, err := json.Marshal(bc)
	if err != nil {
		b.logger.Error("marshal broadcast", zap.String("type", bc.Message.Type), zap.Error(err))
		return
	}
	if err := b.pub.Publish(ctx, b.channel, data); err != nil {
		b.logger.Warn("publish broadcast failed",
			zap.String("type", bc.Message.Type), zap.Error(err))
	}
}
