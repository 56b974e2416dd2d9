// Package messaging provides a NATS client wrapper for the moderation
// pipeline. Raw classifier flags and user reports arrive as batch payloads
// on the ingest subjects; the engine publishes audit events for reopen and
// bulk actions on the audit subject.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the moderation pipeline.
const (
	SubjectFlagsCreated   = "flags.created"
	SubjectReportsCreated = "reports.created"
	SubjectAudit          = "moderation.audit"
)

// NATSClient wraps the NATS connection with helper methods for the
// moderation subjects.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "moderation",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeFlagsCreated registers a handler for classifier flag batches.
func (c *NATSClient) SubscribeFlagsCreated(handler func(data []byte)) error {
	return c.Subscribe(SubjectFlagsCreated, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribeReportsCreated registers a handler for user report batches.
func (c *NATSClient) SubscribeReportsCreated(handler func(data []byte)) error {
	return c.Subscribe(SubjectReportsCreated, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishAudit emits a moderation audit event. Audit is fire-and-forget:
// callers log failures and move on.
func (c *NATSClient) PublishAudit(data []byte) error {
	return c.Publish(SubjectAudit, data)
}

// Close drains all subscriptions and closes the connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	c.conn.Close()
	log.Printf("[nats] connection closed cleanly")
}
