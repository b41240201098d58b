package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSNotifier publishes approval lifecycle events to NATS for consumption by
// the notifications service.
//
// Subject convention: <prefix>.<event>, e.g. notifications.approvals.approved
//
// Publishing is non-fatal: errors are logged but never propagated, so a
// notification failure never interrupts an approval.
type NATSNotifier struct {
	pub    Publisher
	prefix string
	log    *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string    `json:"event_type"`
	OrgID        string    `json:"org_id"`
	ActorID      string    `json:"actor_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Step         int       `json:"step"`
	Status       string    `json:"status"`
	IsActionable bool      `json:"is_actionable"`
	Category     string    `json:"category"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewNATSNotifier creates a notifier publishing under prefix.
func NewNATSNotifier(pub Publisher, prefix string, log *logger.Logger) *NATSNotifier {
	if prefix == "" {
		prefix = "notifications.approvals"
	}
	return &NATSNotifier{pub: pub, prefix: prefix, log: log}
}

func (n *NATSNotifier) Notify(_ context.Context, ev domain.Notification) {
	if n.pub == nil {
		return
	}

	data, err := json.Marshal(NotificationEvent{
		EventType:    string(ev.Event),
		OrgID:        ev.OrgID,
		ActorID:      ev.ActorID,
		ResourceType: "approval_request",
		ResourceID:   ev.RequestID,
		Step:         ev.Step,
		Status:       string(ev.Status),
		IsActionable: !ev.Status.IsTerminal(),
		Category:     "approvals",
		Timestamp:    ev.Timestamp,
	})
	if err != nil {
		n.log.Warn().Err(err).Str("event_type", string(ev.Event)).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", n.prefix, ev.Event)
	if err := n.pub.Publish(subject, data); err != nil {
		n.log.Warn().Err(err).
			Str("subject", subject).
			Str("request_id", ev.RequestID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	n.log.Debug().
		Str("subject", subject).
		Str("request_id", ev.RequestID).
		Msg("notification: event published")
}

// LogNotifier writes events to the log. Used when NATS is not configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev domain.Notification) {
	n.log.Info().
		Str("event_type", string(ev.Event)).
		Str("request_id", ev.RequestID).
		Str("org_id", ev.OrgID).
		Str("actor_id", ev.ActorID).
		Int("step", ev.Step).
		Str("status", string(ev.Status)).
		Msg("notification")
}

// ConnectNATS dials url and logs connection state changes. The connection
// reconnects indefinitely.
func ConnectNATS(url, name string, log *logger.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}
