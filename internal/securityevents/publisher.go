package securityevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"veritrail/internal/actor"
	"veritrail/pkg/platform/middleware/metadata"
	"veritrail/pkg/requestcontext"
)

const (
	defaultBufferSize    = 10000
	defaultFlushInterval = time.Second
	defaultBatchSize     = 256
)

// Publisher buffers security events and flushes them to Kafka, keyed by
// tenant so one tenant's incidents stay ordered. It satisfies the scope
// manager's SecurityReporter.
type Publisher struct {
	client *kgo.Client
	topic  string
	buffer *ringBuffer
	logger *slog.Logger

	flushInterval time.Duration
	batchSize     int
}

// NewPublisher connects a producer to the given brokers. A nil return with
// no error never happens; callers that run without Kafka skip construction.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create kafka client: %w", err)
	}

	return &Publisher{
		client:        client,
		topic:         topic,
		buffer:        newRingBuffer(defaultBufferSize),
		logger:        logger,
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
	}, nil
}

// IsolationViolation enqueues a violation event. Non-blocking.
func (p *Publisher) IsolationViolation(ctx context.Context, a actor.Context, table string) {
	p.Report(ctx, a, Event{
		Type:  EventIsolationViolation,
		Table: table,
	})
}

// TokenRejected enqueues an authentication failure. The actor is unknown at
// that point, so only request metadata is attached.
func (p *Publisher) TokenRejected(ctx context.Context, detail string) {
	p.enqueue(ctx, Event{
		Type:   EventTokenRejected,
		Detail: detail,
	})
}

// Report fills in actor and request metadata and enqueues the event.
func (p *Publisher) Report(ctx context.Context, a actor.Context, event Event) {
	event.TenantID = a.TenantID
	event.UserID = a.UserID
	event.SessionID = a.SessionID
	p.enqueue(ctx, event)
}

func (p *Publisher) enqueue(ctx context.Context, event Event) {
	if event.IPAddress == "" {
		event.IPAddress = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = metadata.SummarizeUserAgent(requestcontext.UserAgent(ctx))
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx).UTC()
	}
	p.buffer.enqueue(event)
}

// Run flushes the buffer until ctx is cancelled, then drains what remains
// and closes the producer.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.client.Close()
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}

		records := make([]*kgo.Record, 0, len(batch))
		for _, event := range batch {
			rec, err := p.record(event)
			if err != nil {
				p.logger.ErrorContext(ctx, "could not encode security event", "error", err, "event_type", string(event.Type))
				continue
			}
			records = append(records, rec)
		}

		if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
			p.logger.ErrorContext(ctx, "could not publish security events",
				"error", err, "count", len(records), "buffered", p.buffer.len(), "dropped_total", p.buffer.droppedTotal())
			// Re-enqueue so a transient broker outage loses nothing.
			for _, event := range batch {
				p.buffer.enqueue(event)
			}
			return
		}

		if len(batch) < p.batchSize {
			return
		}
	}
}

// drain makes one best-effort attempt to ship remaining events on shutdown.
func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.flush(ctx)
}

func (p *Publisher) record(event Event) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.TenantID.String()),
		Value: payload,
	}, nil
}
