// Package gossip wraps an embedded NATS server as a purely internal
// pub/sub event bus carrying thread/bridge lifecycle events. No daemon
// subsystem subscribes to it today; Subscribe is available for observers.
// The daemon binds the embedded server to loopback only, and the external
// RPC transport is the Unix domain socket in internal/daemon.
package gossip

import (
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event is one published bus message: subject plus its payload bytes.
type Event struct {
	Subject string
	Data    []byte
}

// Bus wraps a connection to the embedded NATS server.
type Bus struct {
	conn *nc.Conn
	log  *logrus.Entry
}

// Connect dials the embedded server at url (typically its in-process
// client URL) and wires reconnect logging through logrus.
func Connect(url string, log *logrus.Entry) (*Bus, error) {
	opts := []nc.Option{
		nc.Name("memoryd"),
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("gossip bus disconnected")
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.WithField("url", conn.ConnectedUrl()).Info("gossip bus reconnected")
		}),
		nc.ClosedHandler(func(*nc.Conn) {
			log.Info("gossip bus connection closed")
		}),
	}

	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("gossip: connecting to embedded bus: %w", err)
	}
	return &Bus{conn: conn, log: log}, nil
}

// Close closes the connection without draining it.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishJSON marshals v and publishes it to subject.
func (b *Bus) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gossip: marshaling event for %s: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("gossip: publishing to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers an async handler for subject (supports NATS
// wildcard subjects, e.g. "thread.bridge.*").
func (b *Bus) Subscribe(subject string, handler func(Event)) (*nc.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(Event{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("gossip: subscribing to %s: %w", subject, err)
	}
	return sub, nil
}

// Flush blocks until buffered publishes reach the server.
func (b *Bus) Flush() error {
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("gossip: flush: %w", err)
	}
	return nil
}

// IsConnected reports the current connection state.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
