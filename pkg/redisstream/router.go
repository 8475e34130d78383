package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BuildPubSub constructs a Watermill publisher/subscriber pair on Redis Streams.
// With an empty consumer group every subscriber receives every message.
func BuildPubSub(client redis.UniversalClient, s Settings, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if client == nil {
		return nil, nil, errors.New("redisstream: client is nil")
	}
	if logger == nil {
		logger = NewZerologAdapter(log.Logger)
	}
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "redisstream: new publisher")
	}

	consumer := s.Consumer
	if s.Group != "" && consumer == "" {
		consumer = watermill.NewShortUUID()
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, errors.Wrap(err, "redisstream: new subscriber")
	}
	return pub, sub, nil
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	if group == "" {
		return nil
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
