package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func entered() engine.Evaluation {
	side := domain.SideDown
	return engine.Evaluation{
		MarketID:      "ETH",
		WindowStartMs: 1767355200000,
		PriceToBeat:   3100,
		Decision:      domain.TradeDecision{MarketID: "ETH", Action: domain.ActionEnter, Side: &side, Edge: 0.09},
		Order:         &execution.OrderPlan{MarketID: "ETH", Side: side, Strategy: execution.OrderStrategyResult{Type: execution.OrderResting, Price: 0.44}},
	}
}

func TestNewKafkaValidates(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	if _, err := NewKafka(nil, "topic", tracer); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafka([]string{"localhost:9092"}, "", tracer); err == nil {
		t.Fatal("expected error without topic")
	}
	k, err := NewKafka([]string{"localhost:9092"}, "updown.decisions", tracer)
	if err != nil {
		t.Fatalf("new kafka: %v", err)
	}
	if k.topic != "updown.decisions" {
		t.Fatalf("unexpected topic %s", k.topic)
	}
}

func TestPublishEnteredDecision(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "updown.decisions", trace.NewNoopTracerProvider().Tracer("test"))
	k.now = func() time.Time { return time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC) }

	trade := domain.PendingTrade{ID: "t-1", Size: 11.36, EntryPrice: 0.44}
	if err := k.Publish(context.Background(), entered(), trade); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "ETH" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got DecisionEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TradeID != "t-1" || got.Order == nil || got.Order.Strategy.Price != 0.44 || *got.Decision.Side != domain.SideDown {
		t.Fatalf("unexpected event %+v", got)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Fatal("expected writer closed")
	}
}

func TestPublishSkipsNoTradeAndWrapsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	k := newKafka(w, "updown.decisions", trace.NewNoopTracerProvider().Tracer("test"))

	if err := k.Publish(context.Background(), engine.Evaluation{MarketID: "BTC"}, domain.PendingTrade{}); err != nil {
		t.Fatalf("no-trade publish should be a no-op: %v", err)
	}
	if len(w.msgs) != 0 {
		t.Fatal("no-trade must not be written")
	}
	if err := k.Publish(context.Background(), entered(), domain.PendingTrade{ID: "t-2"}); err == nil {
		t.Fatal("expected write error")
	}
}
