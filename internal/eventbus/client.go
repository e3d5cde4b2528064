// Package eventbus publishes groupad's best-effort async notifications
// (flattening/sync outcomes) onto NATS, for external consumers — caches,
// search indexes — to invalidate against. A publish failure is returned to
// the caller, who is expected to log-and-continue: nothing in
// groupad rolls back a commit because a notification didn't make it out.
package eventbus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	events "github.com/groupad/groupad/pkg/events/v1alpha1"
)

const (
	defaultSubject = "groupad.events"
)

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Client is an event bus client with some configuration.
type Client struct {
	conn   conn
	logger *zap.Logger
	tracer trace.Tracer
	prefix string
}

// Option is a functional configuration option for groupad eventing.
type Option func(c *Client)

// NewClient configures a new event bus client; it opens no connection of its
// own, the NATS connection is supplied with WithNATSConn.
func NewClient(opts ...Option) *Client {
	client := Client{
		logger: zap.NewNop(),
		tracer: otel.GetTracerProvider().Tracer("github.com/groupad/groupad:eventbus"),
		prefix: defaultSubject,
	}

	for _, opt := range opts {
		opt(&client)
	}

	return &client
}

// WithNATSConn sets the nats connection.
func WithNATSConn(nc *nats.Conn) Option {
	return func(c *Client) {
		c.conn = nc
	}
}

// WithNATSPrefix sets the nats subscription prefix.
func WithNATSPrefix(p string) Option {
	return func(c *Client) {
		c.prefix = p
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracer sets the client's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// Shutdown drains the event bus and closes the connections.
func (c *Client) Shutdown() error {
	return c.conn.Drain()
}

// Publish an event on the event bus under prefix.sub, e.g.
// "groupad.events.sgroups".
func (c *Client) Publish(ctx context.Context, sub string, event *events.Event) error {
	if event == nil {
		return ErrEmptyEvent
	}

	_, span := c.tracer.Start(ctx, "eventbus.Publish")
	defer span.End()

	subject := c.prefix + "." + sub

	c.logger.Debug("publishing event on subject", zap.String("subject", subject), zap.Any("event", event))

	j, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return c.conn.Publish(subject, j)
}
