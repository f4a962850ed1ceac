package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Transport is a Redis Streams publisher/subscriber pair sharing one client.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	client     *redis.Client
}

// Build connects to Redis and constructs the Watermill publisher and
// consumer-group subscriber.
func Build(ctx context.Context, s Settings) (*Transport, error) {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", s.Addr)
	}
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis subscriber")
	}

	return &Transport{Publisher: pub, Subscriber: sub, client: client}, nil
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($)
// if it does not exist, so a new group does not replay history.
func (t *Transport) EnsureGroupAtTail(ctx context.Context, stream, group string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}

func (t *Transport) Close() error {
	var errs []error
	if err := t.Subscriber.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close subscriber"))
	}
	if err := t.Publisher.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close publisher"))
	}
	if err := t.client.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close redis client"))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
