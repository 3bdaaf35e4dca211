package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// Event names carried in the envelope and the message headers.
const (
	EventInstrumentSnapshot = "instrument.snapshot"
	EventQuoteTick          = "quote.tick"
)

// Envelope wraps every event this adapter emits. Consumers key off Event and
// deserialize Payload themselves.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits snapshot and quote events over NATS JetStream. A nil
// Publisher is valid and drops everything, so callers wired without NATS
// need no branching.
type Publisher struct {
	logger            *zap.Logger
	nc                *nats.Conn
	js                nats.JetStreamContext
	instrumentSubject string
	quoteSubject      string
	source            string
}

// New creates a Publisher with JetStream enabled.
func New(logger *zap.Logger, nc *nats.Conn, instrumentSubject, quoteSubject, source string) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		logger:            logger,
		nc:                nc,
		js:                js,
		instrumentSubject: instrumentSubject,
		quoteSubject:      quoteSubject,
		source:            source,
	}, nil
}

// PublishInstrument emits an instrument.snapshot event after a successful
// scrape.
func (p *Publisher) PublishInstrument(_ context.Context, inst *model.Instrument) error {
	if p == nil {
		return nil
	}
	return p.publish(EventInstrumentSnapshot, p.instrumentSubject, inst)
}

// PublishQuote emits a quote.tick event for every served quote.
func (p *Publisher) PublishQuote(_ context.Context, q *model.Quote) error {
	if p == nil {
		return nil
	}
	return p.publish(EventQuoteTick, p.quoteSubject, q)
}

func (p *Publisher) publish(event, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event", event),
			zap.Error(err),
		)
		return err
	}

	env := &Envelope{
		EventID:    uuid.New(),
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Source:     p.source,
		Payload:    data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    body,
		Header: nats.Header{
			"event":        []string{event},
			"event_id":     []string{env.EventID.String()},
			"source":       []string{p.source},
			"content_type": []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		metrics.NATSPublishErrors.WithLabelValues(subject).Inc()
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event", event),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("publisher.published",
		zap.String("subject", subject),
		zap.String("event", event),
	)
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
