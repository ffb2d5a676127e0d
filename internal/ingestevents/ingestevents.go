// Package ingestevents publishes one summary event per pipeline run to Kafka.
package ingestevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

type Event struct {
	RunID     string        `json:"run_id"`
	TS        time.Time     `json:"ts"`
	Sources   []SourceEvent `json:"sources"`
	Bounds    *model.BBox   `json:"bounds,omitempty"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

type SourceEvent struct {
	Name    string `json:"name"`
	Format  string `json:"format"`
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Records int    `json:"records"`
	Dropped int    `json:"dropped"`
}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("ingestevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("ingestevents: marshal", "run_id", ev.RunID, "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.RunID),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncKafka("produce", nil)
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncKafka("produce", err)
				p.logger.Warn("ingestevents: producer error", "err", err.Err, "topic", err.Msg.Topic)
			}
		}
	}()

	return p
}

// Publish enqueues ev without blocking; when the queue is full it is dropped.
func (p *Publisher) Publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("ingestevents: queue full, dropping event", "run_id", ev.RunID)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("ingestevents: close producer: %w", err)
	}
	return nil
}
