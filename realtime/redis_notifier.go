package realtime

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/model"
)

// RedisNotifier uses redis pub/sub with one channel per connection.
type RedisNotifier struct {
	cli    *redis.Client
	logger *logrus.Logger
}

func NewRedisNotifier(cli *redis.Client, logger *logrus.Logger) *RedisNotifier {
	return &RedisNotifier{cli: cli, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, connID string, row *model.Row) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return n.cli.Publish(ctx, Channel(connID), data).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, connID string) (Subscription, error) {
	pubsub := n.cli.Subscribe(ctx, Channel(connID))
	// wait for the subscription confirmation so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan *model.Row, subscriptionBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go sub.loop(n.logger, connID)
	return sub, nil
}

// Close is a no-op, the client belongs to the store.
func (n *RedisNotifier) Close() error {
	return nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	out       chan *model.Row
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) loop(logger *logrus.Logger, connID string) {
	defer close(s.exited)
	defer close(s.out)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			row, err := decodeRow([]byte(msg.Payload))
			if err != nil {
				logger.WithFields(logrus.Fields{
					"conn_id": connID,
					"err":     err,
				}).Warn("Drop the malformed snapshot notification")
				continue
			}
			select {
			case s.out <- row:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) C() <-chan *model.Row {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
		<-s.exited
	})
	return err
}
