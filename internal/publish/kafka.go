package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DecisionEvent is the message body consumed by the execution collaborator.
type DecisionEvent struct {
	TradeID       string               `json:"trade_id"`
	MarketID      string               `json:"market_id"`
	WindowStartMs int64                `json:"window_start_ms"`
	PriceToBeat   float64              `json:"price_to_beat"`
	Decision      domain.TradeDecision `json:"decision"`
	Order         *execution.OrderPlan `json:"order,omitempty"`
	Size          float64              `json:"size"`
	EntryPrice    float64              `json:"entry_price"`
	Live          bool                 `json:"live"`
	PublishedAt   time.Time            `json:"published_at"`
}

// Kafka publishes entered decisions keyed by market id, so one market's
// events stay ordered on one partition.
type Kafka struct {
	writer messageWriter
	topic  string
	tracer trace.Tracer
	now    func() time.Time
}

func NewKafka(brokers []string, topic string, tracer trace.Tracer) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafka(w, topic, tracer), nil
}

func newKafka(w messageWriter, topic string, tracer trace.Tracer) *Kafka {
	return &Kafka{writer: w, topic: topic, tracer: tracer, now: func() time.Time { return time.Now().UTC() }}
}

// Publish writes one ENTER decision. Other decisions are ignored.
func (k *Kafka) Publish(ctx context.Context, ev engine.Evaluation, trade domain.PendingTrade) error {
	if !ev.Decision.Entered() {
		return nil
	}
	ctx, span := k.tracer.Start(ctx, "publish.decision")
	defer span.End()
	span.SetAttributes(attribute.String("market", ev.MarketID), attribute.String("topic", k.topic))

	body, err := json.Marshal(DecisionEvent{
		TradeID:       trade.ID,
		MarketID:      ev.MarketID,
		WindowStartMs: ev.WindowStartMs,
		PriceToBeat:   ev.PriceToBeat,
		Decision:      ev.Decision,
		Order:         ev.Order,
		Size:          trade.Size,
		EntryPrice:    trade.EntryPrice,
		Live:          trade.Live,
		PublishedAt:   k.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	msg := kafka.Message{Key: []byte(ev.MarketID), Value: body, Time: k.now()}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write decision %s: %w", trade.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
