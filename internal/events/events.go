// Package events publishes click notifications for resolved short links.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const DefaultSubject = "links.clicked"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends each ClickEvent as JSON on a core NATS subject.
// Delivery is at-most-once; consumers that need durability should front the
// subject with a JetStream stream.
type NATSPublisher struct {
	conn    Conn
	subject string
}

var _ shortener.ClickPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(conn Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Subject() string { return p.subject }

func (p *NATSPublisher) PublishClick(ctx context.Context, ev shortener.ClickEvent) error {
	const op = "events.NATSPublisher.PublishClick"

	if err := ctx.Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errx.E(op, errx.Internal, err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errx.E(op, errx.Unavailable, fmt.Errorf("publish %s: %w", p.subject, err))
	}
	return nil
}

// Connect dials NATS with unlimited reconnects and logs connection state
// changes.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	const op = "events.Connect"

	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}
	return nc, nil
}

// Noop discards every event.
type Noop struct{}

var _ shortener.ClickPublisher = Noop{}

func (Noop) PublishClick(context.Context, shortener.ClickEvent) error { return nil }
