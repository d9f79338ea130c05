// Package redis publishes session events on Redis pub/sub channels.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/harun/tablekeeper/pkg/events"
)

// DefaultChannelPrefix prefixes every session channel.
const DefaultChannelPrefix = "tablekeeper"

// Options configures the Redis connection.
type Options struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// Publisher implements events.Publisher over Redis PUBLISH.
type Publisher struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return NewWithClient(client, opts.ChannelPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Publisher{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("redis.Publisher.Close: %w", err)
	}
	return nil
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("redis.Publisher.Publish: %w", err)
	}
	if err := p.client.Publish(ctx, SessionChannel(p.prefix, ev.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("redis.Publisher.Publish: %w", err)
	}
	return nil
}

// Subscribe streams decoded events for a session. The channel closes once
// ctx is done or the returned cleanup function is called; cleanup is safe to
// call more than once.
func (p *Publisher) Subscribe(ctx context.Context, sessionID string) (<-chan events.Event, func(), error) {
	sub := p.client.Subscribe(ctx, SessionChannel(p.prefix, sessionID))

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.Publisher.Subscribe: receive confirmation: %w", err)
	}

	var once sync.Once
	closeSub := func() {
		once.Do(func() { _ = sub.Close() })
	}

	out := make(chan events.Event, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		defer closeSub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping undecodable event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, closeSub, nil
}

// SessionChannel returns the Redis channel name for a session.
func SessionChannel(prefix, sessionID string) string {
	return prefix + ":session:" + sessionID
}

// Encode serialises an event for the wire.
func Encode(ev events.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (events.Event, error) {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return events.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
