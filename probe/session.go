// Package probe opens a short-lived diagnostic session against a monitored
// server and collects the raw material for a snapshot.
package probe

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cacheoracle/cacheoracle/descriptor"
	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/helper/redis/hooks"
	"github.com/cacheoracle/cacheoracle/model"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultLatencySamples = 10
	DefaultSlowlogLimit   = 10
)

type Options struct {
	ConnectTimeout time.Duration
	LatencySamples int
	SlowlogLimit   int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.LatencySamples <= 0 {
		o.LatencySamples = DefaultLatencySamples
	}
	if o.SlowlogLimit <= 0 {
		o.SlowlogLimit = DefaultSlowlogLimit
	}
	return o
}

// Diagnostics is the unparsed output of one session.
type Diagnostics struct {
	Info    string
	DBSize  int64
	Slowlog []model.SlowlogEntry
}

// Session owns exactly one connection to the monitored server.
type Session struct {
	client    *redis.Client
	addr      string
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

// Open dials the server described by d and verifies it answers PING within
// the connect timeout. The connection is released on failure.
func Open(ctx context.Context, d *descriptor.Descriptor, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:         d.Addr(),
		Password:     d.Password,
		PoolSize:     1,
		MaxRetries:   -1,
		DialTimeout:  opts.ConnectTimeout,
		ReadTimeout:  opts.ConnectTimeout,
		WriteTimeout: opts.ConnectTimeout,
	})
	client.AddHook(hooks.NewMetricsHook(hooks.RoleTarget, d.Addr()))

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(connectCtx).Err(); err != nil {
		_ = client.Close()
		return nil, classify(err, "failed to connect to "+d.String())
	}
	return &Session{client: client, addr: d.Addr(), opts: opts}, nil
}

func (s *Session) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ProbeLatency returns the mean PING round trip in milliseconds over n
// sequential calls.
func (s *Session) ProbeLatency(ctx context.Context, n int) (float64, error) {
	if n <= 0 {
		n = s.opts.LatencySamples
	}
	return ProbeLatency(ctx, s, n)
}

// FetchDiagnostics runs INFO all, DBSIZE and SLOWLOG GET in sequence. Any
// failure discards everything fetched so far.
func (s *Session) FetchDiagnostics(ctx context.Context) (*Diagnostics, error) {
	info, err := s.client.Info(ctx, "all").Result()
	if err != nil {
		return nil, classify(err, "failed to fetch server info")
	}
	dbSize, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, classify(err, "failed to fetch db size")
	}
	reply, err := s.client.Do(ctx, "SLOWLOG", "GET", s.opts.SlowlogLimit).Result()
	if err != nil {
		return nil, classify(err, "failed to fetch slowlog")
	}
	return &Diagnostics{
		Info:    info,
		DBSize:  dbSize,
		Slowlog: decodeSlowlog(reply),
	}, nil
}

// Close is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// Collect opens a session, hands it to fn and always closes it afterwards.
func Collect(ctx context.Context, d *descriptor.Descriptor, opts Options, fn func(*Session) error) error {
	session, err := Open(ctx, d, opts)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func classify(err error, msg string) error {
	if isTimeout(err) {
		return errs.Wrap(errs.TimeoutError, err, "connection timed out")
	}
	return errs.Wrap(errs.ConnectionError, err, msg)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
