package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	HTTPPort     int
	APIKey       string
	LogLevel     string
	LogFormat    string
	StrategyFile string

	TracingEnabled bool
	OTLPEndpoint   string

	Markets          []string
	TickIntervalSecs int
	SettlePollSecs   int
	WindowMinutes    int

	PaperTrading      bool
	StakeUSD          float64
	DailyLossLimitUSD float64
	QualityModel      string

	KafkaBrokers []string
	KafkaTopic   string

	TelegramBotToken string
	TelegramChatID   int64
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		StrategyFile:     strings.TrimSpace(os.Getenv("STRATEGY_FILE")),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, trade mirror and model registry disabled")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.HTTPPort = envInt("HTTP_PORT", 8080)
	cfg.TickIntervalSecs = envInt("TICK_INTERVAL_SECS", 5)
	cfg.SettlePollSecs = envInt("SETTLE_POLL_SECS", 10)
	cfg.WindowMinutes = envInt("WINDOW_MINUTES", 15)

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat != "console" {
		cfg.LogFormat = "json"
	}

	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")

	cfg.Markets = splitList(strings.ToUpper(os.Getenv("MARKETS")))
	if len(cfg.Markets) == 0 {
		cfg.Markets = []string{"BTC"}
	}

	cfg.PaperTrading = !strings.EqualFold(strings.TrimSpace(os.Getenv("PAPER_TRADING")), "false")
	if !cfg.PaperTrading {
		log.Warn().Msg("PAPER_TRADING=false: entries are recorded as live and debited at entry")
	}
	cfg.StakeUSD = envFloat("STAKE_USD", 5)
	cfg.DailyLossLimitUSD = envFloat("DAILY_LOSS_LIMIT_USD", 50)

	cfg.QualityModel = strings.ToLower(strings.TrimSpace(os.Getenv("QUALITY_MODEL")))
	if cfg.QualityModel != "xgboost" {
		if cfg.QualityModel != "" && cfg.QualityModel != "logreg" {
			log.Warn().Str("value", cfg.QualityModel).Msg("unsupported QUALITY_MODEL, defaulting to logreg")
		}
		cfg.QualityModel = "logreg"
	}

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "updown.decisions"
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			log.Warn().Str("value", v).Msg("invalid TELEGRAM_CHAT_ID, notifications disabled")
		}
	}

	return cfg
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("invalid number, using default")
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
