package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/deckhand/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultTopic = "deckhand.events"

// Bus carries Events over a Watermill publisher/subscriber pair.
type Bus struct {
	pub   message.Publisher
	sub   message.Subscriber
	topic string

	closeOnce sync.Once
	closeErr  error
}

var _ Publisher = (*Bus)(nil)

// NewInMemoryBus returns a process-local bus backed by Watermill's gochannel.
// Publish waits for every subscriber to ack, so events arrive in publish
// order; Subscribe acks before forwarding, so publishers only block while a
// subscriber's buffer is full.
func NewInMemoryBus() *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, redisstream.NewZerologAdapter(log.Logger))
	return &Bus{pub: ch, sub: ch, topic: DefaultTopic}
}

// NewRedisBus returns a bus on a Redis stream so several processes observe
// the same events.
func NewRedisBus(ctx context.Context, client redis.UniversalClient, s redisstream.Settings) (*Bus, error) {
	stream := s.StreamOrDefault()
	if err := redisstream.EnsureGroupAtTail(ctx, client, stream, s.Group); err != nil {
		return nil, errors.Wrap(err, "events: ensure consumer group")
	}
	pub, sub, err := redisstream.BuildPubSub(client, s, redisstream.NewZerologAdapter(log.Logger))
	if err != nil {
		return nil, err
	}
	return NewBus(pub, sub, stream), nil
}

func NewBus(pub message.Publisher, sub message.Subscriber, topic string) *Bus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Bus{pub: pub, sub: sub, topic: topic}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b == nil {
		return nil
	}
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(e.ID, payload)
	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	msg.Metadata.Set("type", string(e.Type))
	msg.SetContext(ctx)
	if err := b.pub.Publish(b.topic, msg); err != nil {
		return errors.Wrapf(err, "events: publish %s", e.Type)
	}
	return nil
}

// Subscribe streams decoded events until ctx is cancelled or the bus closes.
// Malformed and unknown events are acknowledged and dropped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, errors.Wrap(err, "events: subscribe")
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			e, err := Decode(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Debug().Str("component", "events").Str("msg_id", msg.UUID).Err(err).Msg("dropping event")
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				// drain so the transport can shut down
				for m := range msgs {
					m.Ack()
				}
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		err := b.pub.Close()
		if any(b.sub) != any(b.pub) {
			if subErr := b.sub.Close(); err == nil {
				err = subErr
			}
		}
		if err != nil {
			b.closeErr = errors.Wrap(err, "events: close bus")
		}
	})
	return b.closeErr
}

func logPublishFailure(e Event, err error) {
	log.Debug().Str("component", "events").Str("type", string(e.Type)).Err(err).Msg("publish failed")
}
