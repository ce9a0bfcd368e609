// Package telemetry publishes registration and eviction lifecycle
// events to NATS, following the publisher shape in Go2NetSpectra's
// internal/probe package: connect once at startup, marshal each event,
// publish to a fixed subject, drain on shutdown. Go2NetSpectra
// serializes with protobuf against a generated schema; there is no
// generated schema for this event shape, so events are marshaled with
// encoding/json instead of fabricating a .proto and codegen step.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is the wire shape of one published lifecycle event.
type Event struct {
	Time   time.Time      `json:"time"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Publisher publishes EventPublisher events (from internal/regsm and
// internal/reactor) onto a NATS subject.
type Publisher struct {
	log     *slog.Logger
	nc      *nats.Conn
	subject string
}

// Connect dials the NATS server at url and returns a Publisher that
// publishes to subject. log may be nil (defaults to slog.Default()).
func Connect(log *slog.Logger, url, subject string) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telemetry")

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	log.Info("connected to NATS", "url", url, "subject", subject)
	return &Publisher{log: log, nc: nc, subject: subject}, nil
}

// Publish implements regsm.EventPublisher and reactor's eviction hook.
// Marshal and publish errors are logged and otherwise swallowed:
// telemetry is best-effort and must never affect the registration or
// eviction paths that call it.
func (p *Publisher) Publish(kind string, fields map[string]any) {
	data, err := json.Marshal(Event{Time: time.Now(), Kind: kind, Fields: fields})
	if err != nil {
		p.log.Warn("failed to marshal telemetry event", "kind", kind, "error", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.log.Warn("failed to publish telemetry event", "kind", kind, "error", err)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
