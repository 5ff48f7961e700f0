// ABOUTME: Redis-backed phone relay: outbound jobs are queued for a phone to send
// ABOUTME: Texts the phone receives come back over a pub/sub channel

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Default Redis keys for the phone relay.
const (
	DefaultOutboundKey    = "smsrelay:outbound"
	DefaultInboundChannel = "smsrelay:inbound"
)

// RelayJob is the JSON document pushed for the phone to send.
type RelayJob struct {
	ID       string    `json:"id"`
	To       string    `json:"to"`
	Body     string    `json:"body"`
	MediaURL string    `json:"media_url,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// RelayConfig locates the Redis keys used by the phone relay.
type RelayConfig struct {
	OutboundKey    string
	InboundChannel string
}

// RelayClient queues outbound jobs and subscribes to inbound texts.
type RelayClient struct {
	rdb *redis.Client
	cfg RelayConfig
}

// NewRelayClient connects to Redis with opts.
func NewRelayClient(opts *redis.Options, cfg RelayConfig) (*RelayClient, error) {
	if opts == nil || opts.Addr == "" {
		return nil, fmt.Errorf("%w: relay requires redis_addr", ErrNotConfigured)
	}
	if cfg.OutboundKey == "" {
		cfg.OutboundKey = DefaultOutboundKey
	}
	if cfg.InboundChannel == "" {
		cfg.InboundChannel = DefaultInboundChannel
	}
	return &RelayClient{rdb: redis.NewClient(opts), cfg: cfg}, nil
}

// Name returns "relay".
func (c *RelayClient) Name() string { return "relay" }

// Ping checks the Redis connection.
func (c *RelayClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *RelayClient) Close() error {
	return c.rdb.Close()
}

// Send queues a job. Success means the job was accepted by Redis; the job ID
// is returned as the provider message ID.
func (c *RelayClient) Send(ctx context.Context, to, body, mediaURL string) (string, error) {
	job := RelayJob{
		ID:       uuid.NewString(),
		To:       to,
		Body:     body,
		MediaURL: mediaURL,
		QueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding relay job: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.cfg.OutboundKey, data).Err(); err != nil {
		return "", fmt.Errorf("queueing relay job: %w", err)
	}
	return job.ID, nil
}

// Subscription delivers inbound texts published by the phone.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan InboundMessage
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of inbound messages. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan InboundMessage { return s.events }

// Errors returns malformed-payload errors. The subscription keeps running.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens on the inbound channel. It returns once Redis has
// confirmed the subscription, so no message published afterwards is missed.
func (c *RelayClient) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, c.cfg.InboundChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", c.cfg.InboundChannel, err)
	}

	events := make(chan InboundMessage, 10)
	errs := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var in InboundMessage
				if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil || in.From == "" {
					if err == nil {
						err = errors.New("missing from")
					}
					select {
					case errs <- fmt.Errorf("decoding inbound relay message: %w", err):
					case <-subCtx.Done():
						return
					default:
					}
					continue
				}

				select {
				case events <- in:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, errors: errs, cancel: cancel}, nil
}
