package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"updown-trader/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// StatsSource is the settlement ledger view served by the /stats command.
type StatsSource interface {
	Stats() domain.AggregateStats
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type bot interface {
	sender
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
	Start()
	Stop()
}

var newBot = func(pref tele.Settings) (bot, error) {
	return tele.NewBot(pref)
}

// Telegram posts a summary of every settlement pass to one chat and answers
// /ping and /stats.
type Telegram struct {
	bot   bot
	chat  tele.Recipient
	stats StatsSource
}

func NewTelegram(token string, chatID int64, stats StatsSource) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	b, err := newBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t := &Telegram{bot: b, chat: tele.ChatID(chatID), stats: stats}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/stats", func(c tele.Context) error {
		if t.stats == nil {
			return c.Send("stats unavailable")
		}
		return c.Send(FormatStats(t.stats.Stats()))
	})
	return t, nil
}

// SetStats attaches the ledger served by /stats.
func (t *Telegram) SetStats(stats StatsSource) {
	t.stats = stats
}

// Start polls for commands until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) {
	go t.bot.Start()
	log.Info().Msg("telegram notifier started")
	<-ctx.Done()
	t.bot.Stop()
}

// OnSettled implements settlement.Listener. Send failures are logged only.
func (t *Telegram) OnSettled(_ context.Context, results []domain.SettlementResult, stats domain.AggregateStats) {
	if len(results) == 0 {
		return
	}
	if _, err := t.bot.Send(t.chat, FormatSettlement(results, stats)); err != nil {
		log.Warn().Err(err).Int("trades", len(results)).Msg("failed to send settlement notification")
	}
}

func FormatSettlement(results []domain.SettlementResult, stats domain.AggregateStats) string {
	sorted := make([]domain.SettlementResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].MarketID != sorted[b].MarketID {
			return sorted[a].MarketID < sorted[b].MarketID
		}
		return sorted[a].TradeID < sorted[b].TradeID
	})

	var b strings.Builder
	var windowPnL float64
	fmt.Fprintf(&b, "Settled %d trade(s)\n", len(sorted))
	for _, r := range sorted {
		result := "LOSS"
		if r.Won {
			result = "WIN"
		}
		windowPnL += r.PnL
		fmt.Fprintf(&b, "%s %s %s %+.2f @ %.2f\n", r.MarketID, r.Side, result, r.PnL, r.SettlePrice)
	}
	fmt.Fprintf(&b, "Window PnL: %+.2f\n", windowPnL)
	b.WriteString(FormatStats(stats))
	return b.String()
}

func FormatStats(s domain.AggregateStats) string {
	return fmt.Sprintf(
		"Trades: %d (%dW/%dL, %.1f%%)\nTotal PnL: %+.2f\nToday: %+.2f\nMax drawdown: %.2f\nPending: %d",
		s.TotalTrades, s.Wins, s.Losses, s.WinRate*100, s.TotalPnL, s.TodayPnL, s.MaxDrawdown, s.Pending,
	)
}
