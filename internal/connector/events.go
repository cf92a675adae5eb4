package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	EventConnectCompleted    = "connect.completed"
	EventConnectFailed       = "connect.failed"
	EventDisconnectRequested = "disconnect.requested"
)

// Event is a lifecycle notification for downstream consumers (voice runtime caches, ops).
type Event struct {
	Type        string         `json:"type"`
	AccountID   string         `json:"account_id"`
	PhoneNumber string         `json:"phone_number"`
	ErrorKind   Kind           `json:"error_kind,omitempty"`
	FailedStep  Step           `json:"failed_step,omitempty"`
	Result      *ConnectResult `json:"result,omitempty"`
	At          time.Time      `json:"at"`
}

// Publisher delivers lifecycle events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes each event on <subject>.<event type>.
type NATSPublisher struct {
	nc      natsConn
	subject string
}

func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("connector: encode event: %w", err)
	}
	if err := p.nc.Publish(p.subject+"."+e.Type, data); err != nil {
		return fmt.Errorf("connector: publish %s: %w", e.Type, err)
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
