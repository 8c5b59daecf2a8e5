package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/pkg/logger"
)

const (
	maxWriteBatch = 100
	flushTimeout  = 5 * time.Second
)

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DropCounter records events that never reached Kafka.
type DropCounter interface {
	AddDroppedEvents(n uint64)
}

// EventPublisher mirrors events onto a Kafka topic. Publish only enqueues; Run performs
// the writes, so a slow broker never stalls the dialer. Events arriving while the
// buffer is full are dropped and counted.
type EventPublisher struct {
	writer  MessageWriter
	pending chan kafka.Message
	logger  *logger.Logger
	drops   DropCounter
	dropped atomic.Uint64
	now     func() time.Time
}

// NewEventPublisher constructs a publisher for the given topic.
func NewEventPublisher(k *Kafka, topic string, buffer int, lg *logger.Logger, drops DropCounter) *EventPublisher {
	return newEventPublisher(k.NewWriter(topic), buffer, lg, drops)
}

func newEventPublisher(w MessageWriter, buffer int, lg *logger.Logger, drops DropCounter) *EventPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if lg == nil {
		lg = logger.NewNop()
	}
	return &EventPublisher{
		writer:  w,
		pending: make(chan kafka.Message, buffer),
		logger:  lg.Named("event-publisher"),
		drops:   drops,
		now:     time.Now,
	}
}

// Publish implements events.Publisher.
func (p *EventPublisher) Publish(event string, payload any) {
	msg, err := p.encode(event, payload)
	if err != nil {
		p.logger.Error("event publisher: encode", zap.String("event", event), zap.Error(err))
		p.drop()
		return
	}
	select {
	case p.pending <- msg:
	default:
		p.drop()
	}
}

// Dropped reports how many events were discarded.
func (p *EventPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run writes buffered events until ctx is cancelled, then flushes what is left.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			p.flush(flushCtx)
			return ctx.Err()
		case first := <-p.pending:
			p.write(ctx, p.collect(first))
		}
	}
}

// Close releases the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

func (p *EventPublisher) collect(first kafka.Message) []kafka.Message {
	batch := []kafka.Message{first}
	for len(batch) < maxWriteBatch {
		select {
		case msg := <-p.pending:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (p *EventPublisher) flush(ctx context.Context) {
	for {
		select {
		case first := <-p.pending:
			p.write(ctx, p.collect(first))
		default:
			return
		}
	}
}

func (p *EventPublisher) write(ctx context.Context, batch []kafka.Message) {
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		p.logger.Error("event publisher: write", zap.Int("messages", len(batch)), zap.Error(err))
		p.dropped.Add(uint64(len(batch)))
		if p.drops != nil {
			p.drops.AddDroppedEvents(uint64(len(batch)))
		}
	}
}

func (p *EventPublisher) drop() {
	p.dropped.Add(1)
	if p.drops != nil {
		p.drops.AddDroppedEvents(1)
	}
}

func (p *EventPublisher) encode(event string, payload any) (kafka.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	now := p.now().UTC()
	env := EventMessage{Event: event, Payload: body, OccurredAt: now}
	if keyed, ok := payload.(events.Keyed); ok {
		env.Key = keyed.EventKey()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	key := env.Key
	if key == "" {
		key = event
	}
	return kafka.Message{Key: []byte(key), Value: value, Time: now}, nil
}
