package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/user/bookscan-service/internal/entity"
)

// headerCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Notifier publishes credential-refresh outcomes as JSON on a NATS subject.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// NewNotifier creates a new Notifier.
func NewNotifier(conn *nats.Conn, subject string) *Notifier {
	return &Notifier{conn: conn, subject: subject}
}

// NotifyRefresh publishes outcome. Trace context from ctx travels in the
// message headers.
func (n *Notifier) NotifyRefresh(ctx context.Context, outcome entity.RefreshOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}
