package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// Event is the envelope written to every topic.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

// NewProducer builds a writer that picks the topic per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	msg, err := encode(topic, key, payload)
	if err != nil {
		return err
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, "key="+key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

func encode(topic, key string, payload any) (kafka.Message, error) {
	body, err := json.Marshal(Event{Type: topic, OccurredAt: time.Now().UTC(), Data: payload})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", topic, err)
	}
	return kafka.Message{Topic: topic, Key: []byte(key), Value: body}, nil
}

// Noop drops every event. Used when Kafka is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }
func (Noop) Close() error                                       { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu       sync.Mutex
	Messages []kafka.Message
}

func (r *Recorder) Publish(_ context.Context, topic, key string, payload any) error {
	msg, err := encode(topic, key, payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.Messages = append(r.Messages, msg)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Topics returns the topics recorded so far, in publish order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Topic)
	}
	return out
}

// Emitter publishes best-effort: failures are logged and never returned.
type Emitter struct {
	Publisher Publisher
	Topics    config.TopicConfig
	Logger    *logger.Logger
}

func NewEmitter(pub Publisher, topics config.TopicConfig, log *logger.Logger) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	return &Emitter{Publisher: pub, Topics: topics, Logger: log}
}

func (e *Emitter) emit(ctx context.Context, topic, key string, payload any) {
	if e == nil || topic == "" {
		return
	}
	// detached from request cancellation so a finished request still emits
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.Publisher.Publish(ctx, topic, key, payload); err != nil {
		e.Logger.LogKafka("PUBLISH_FAILED", topic, err.Error())
	}
}

func (e *Emitter) SlotReserved(ctx context.Context, key string, payload any) {
	if e != nil {
		e.emit(ctx, e.Topics.SlotReserved, key, payload)
	}
}

func (e *Emitter) BookingCancelled(ctx context.Context, key string, payload any) {
	if e != nil {
		e.emit(ctx, e.Topics.BookingCancelled, key, payload)
	}
}

func (e *Emitter) PaymentVerified(ctx context.Context, key string, payload any) {
	if e != nil {
		e.emit(ctx, e.Topics.PaymentVerified, key, payload)
	}
}

func (e *Emitter) PlayerAdded(ctx context.Context, key string, payload any) {
	if e != nil {
		e.emit(ctx, e.Topics.PlayerAdded, key, payload)
	}
}

func (e *Emitter) PlayerScanned(ctx context.Context, key string, payload any) {
	if e != nil {
		e.emit(ctx, e.Topics.PlayerScanned, key, payload)
	}
}
