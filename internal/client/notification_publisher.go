package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes validation workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: flow_created, approval_required, document_approved,
// document_rejected
//
// Each message is a structured-mode CloudEvent whose data is a
// NotificationEvent. All publish operations are non-fatal: errors are logged
// and never propagated to the caller.
type NotificationPublisher struct {
	js     streamPublisher
	prefix string
	source string
	log    zerolog.Logger
}

// streamPublisher is the subset of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NotificationEvent is the JSON schema carried as CloudEvent data.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	CompanyID    string         `json:"company_id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on js. source identifies this
// service in the CloudEvent envelope.
func NewNotificationPublisher(js streamPublisher, subjectPrefix, source string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{js: js, prefix: subjectPrefix, source: source, log: log}
}

// ConnectJetStream connects to NATS and makes sure the stream capturing
// <prefix>.> exists.
func ConnectJetStream(ctx context.Context, url, stream, subjectPrefix string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("be-doc-validations"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}
	return nc, js, nil
}

// PublishValidationEvent publishes a document validation event.
// Subject: <prefix>.<eventType>
func (p *NotificationPublisher) PublishValidationEvent(ctx context.Context, eventType, documentID, companyID, actorID string, recipients []string, payload map[string]any) {
	if p.js == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	data := &NotificationEvent{
		EventType:    eventType,
		CompanyID:    companyID,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "document",
		ResourceID:   documentID,
		IsActionable: eventType == "approval_required",
		Severity:     "info",
		Category:     "document_validation",
		Payload:      payload,
	}

	ce := event.New()
	ce.SetID(uuid.NewString())
	ce.SetSource(p.source)
	ce.SetType("docflow.validation." + eventType)
	ce.SetSubject(documentID)
	ce.SetTime(time.Now().UTC())
	if err := ce.SetData(event.ApplicationJSON, data); err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to encode event data")
		return
	}

	body, err := json.Marshal(ce)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if _, err := p.js.Publish(ctx, subject, body, jetstream.WithMsgID(ce.ID())); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", documentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", documentID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
