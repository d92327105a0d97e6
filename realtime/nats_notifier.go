package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/model"
)

// NATSNotifier publishes rows on one subject per connection.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

func NewNATSNotifier(natsURL string, logger *logrus.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("cacheoracle"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	logger.WithField("url", natsURL).Info("Connected to NATS")
	return &NATSNotifier{conn: conn, logger: logger}, nil
}

func (n *NATSNotifier) Publish(ctx context.Context, connID string, row *model.Row) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return n.conn.Publish(Subject(connID), data)
}

func (n *NATSNotifier) Subscribe(ctx context.Context, connID string) (Subscription, error) {
	msgs := make(chan *nats.Msg, subscriptionBuffer)
	nsub, err := n.conn.ChanSubscribe(Subject(connID), msgs)
	if err != nil {
		return nil, err
	}
	// make sure the server registered the interest before returning
	if err := n.conn.FlushWithContext(ctx); err != nil {
		nsub.Unsubscribe()
		return nil, err
	}
	sub := &natsSubscription{
		sub:    nsub,
		msgs:   msgs,
		out:    make(chan *model.Row, subscriptionBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go sub.loop(n.logger, connID)
	return sub, nil
}

func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
		n.logger.Info("Disconnected from NATS")
	}
	return nil
}

type natsSubscription struct {
	sub       *nats.Subscription
	msgs      chan *nats.Msg
	out       chan *model.Row
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

func (s *natsSubscription) loop(logger *logrus.Logger, connID string) {
	defer close(s.exited)
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.msgs:
			row, err := decodeRow(msg.Data)
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

func (s *natsSubscription) C() <-chan *model.Row {
	return s.out
}

func (s *natsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sub.Unsubscribe()
		close(s.done)
		<-s.exited
	})
	return err
}
