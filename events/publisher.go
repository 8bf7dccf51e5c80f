// Package events publishes settlement events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seabucks/dealer/logger"
	"github.com/seabucks/dealer/metrics"
	"github.com/seabucks/dealer/settlement"
)

// DefaultSubject carries SwapExecuted events.
const DefaultSubject = "evt.settlement.swap_executed.v1"

const eventType = "swap.executed"

// msgPublisher is the slice of nats.JetStreamContext the publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher forwards router events to NATS. It satisfies settlement.EventSink.
type Publisher struct {
	nc      *nats.Conn
	js      msgPublisher
	subject string
	service string
}

// New creates a Publisher on nc with JetStream enabled.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	p := newPublisher(js, subject, service)
	p.nc = nc
	return p, nil
}

// Connect dials url and returns a Publisher on the new connection.
func Connect(url, subject, service string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name(service))
	if err != nil {
		return nil, err
	}
	p, err := New(nc, subject, service)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(js msgPublisher, subject, service string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{js: js, subject: subject, service: service}
}

// Publish serializes ev and publishes it with routing headers.
func (p *Publisher) Publish(ctx context.Context, ev settlement.SwapExecuted) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", p.subject,
			"event_id", ev.ID,
			"error", err,
		)
		metrics.EventsPublishedTotal.WithLabelValues(p.subject, "marshal_failed").Inc()
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{eventType},
			"event_id":     []string{ev.ID},
			"chain_id":     []string{strconv.FormatInt(ev.ChainID, 10)},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}
	// Lets JetStream drop redelivered publishes of the same settlement.
	if ev.ID != "" {
		msg.Header.Set(nats.MsgIdHdr, ev.ID)
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.EventPublishLatency, start, p.subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", p.subject,
			"event_id", ev.ID,
			"payer", ev.Payer.Hex(),
			"error", err,
		)
		metrics.EventsPublishedTotal.WithLabelValues(p.subject, "error").Inc()
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", p.subject,
		"event_id", ev.ID,
		"nonce", ev.Nonce.String(),
	)
	metrics.EventsPublishedTotal.WithLabelValues(p.subject, "ok").Inc()
	return nil
}

// Subject returns the subject events go to.
func (p *Publisher) Subject() string { return p.subject }

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
