// Package redis implements the ChangeFeed interface over Redis pub/sub.
// Events are JSON-encoded on named channels; binding evaluation happens
// client-side, so one subscription covers several tables.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"heartsync"
)

// Options holds configuration for the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every channel name, so several deployments can
	// share one Redis instance.
	Prefix string
}

// Feed implements heartsync.ChangeFeed using Redis pub/sub.
type Feed struct {
	redisClient       *redis.Client
	prefix            string
	createdInternally bool
}

var (
	_ heartsync.ChangeFeed = (*Feed)(nil)
	_ io.Closer            = (*Feed)(nil)
)

// NewFeed creates a Redis-backed change feed.
// If redisCli is not nil, it is used directly. Otherwise opts is used to
// create a new client, and the connection is verified with a ping.
func NewFeed(redisCli *redis.Client, opts *Options) (*Feed, error) {
	var rdb *redis.Client
	var createdInternally bool

	if redisCli != nil {
		rdb = redisCli
	} else {
		if opts == nil {
			opts = &Options{}
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		createdInternally = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	prefix := ""
	if opts != nil {
		prefix = opts.Prefix
	}
	log.Println("Redis change feed initialized successfully.")
	return &Feed{redisClient: rdb, prefix: prefix, createdInternally: createdInternally}, nil
}

// Close implements io.Closer. Only closes the Redis client if it was created
// internally.
func (f *Feed) Close() error {
	if f.createdInternally && f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// Subscribe opens a pub/sub channel and routes incoming events through the
// bindings. The returned handle stops delivery at the transport level.
func (f *Feed) Subscribe(ctx context.Context, channel string, bindings []heartsync.Binding, onEvent heartsync.EventHandler, onStatus heartsync.StatusHandler) (heartsync.FeedHandle, error) {
	if ctx == nil {
		return nil, heartsync.ErrNilContext
	}
	report := func(state heartsync.ChannelState, err error) {
		if onStatus != nil {
			onStatus(state, err)
		}
	}
	report(heartsync.StateSubscribing, nil)

	ps := f.redisClient.Subscribe(ctx, f.prefix+channel)
	// Receive waits for the subscription confirmation from the server.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		if ctx.Err() != nil {
			report(heartsync.StateTimedOut, err)
		} else {
			report(heartsync.StateError, err)
		}
		return nil, fmt.Errorf("redis subscribe on channel '%s': %w", channel, err)
	}
	report(heartsync.StateSubscribed, nil)

	h := &handle{ps: ps, done: make(chan struct{})}
	go h.loop(channel, bindings, onEvent, report)
	return h, nil
}

// Publish encodes the event as JSON and publishes it on its channel. Store
// drivers and tests use this as the change-feed producer side.
func (f *Feed) Publish(ctx context.Context, ev heartsync.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event for channel '%s': %w", ev.Channel, err)
	}
	if err := f.redisClient.Publish(ctx, f.prefix+ev.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish on channel '%s': %w", ev.Channel, err)
	}
	return nil
}

type handle struct {
	ps       *redis.PubSub
	done     chan struct{}
	downOnce sync.Once
}

func (h *handle) loop(channel string, bindings []heartsync.Binding, onEvent heartsync.EventHandler, report func(heartsync.ChannelState, error)) {
	for msg := range h.ps.Channel() {
		var ev heartsync.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("WARN: dropping malformed event on channel '%s': %v", channel, err)
			continue
		}
		if ev.Channel == "" {
			ev.Channel = channel
		}
		for _, b := range bindings {
			if b.Matches(ev) {
				onEvent(ev)
				break
			}
		}
	}
	// Channel closed: either Unsubscribe ran or the connection died.
	select {
	case <-h.done:
		report(heartsync.StateClosed, nil)
	default:
		report(heartsync.StateError, fmt.Errorf("redis pub/sub channel '%s' closed unexpectedly", channel))
	}
}

// Unsubscribe closes the pub/sub connection. Idempotent.
func (h *handle) Unsubscribe() error {
	var err error
	h.downOnce.Do(func() {
		close(h.done)
		err = h.ps.Close()
	})
	return err
}
