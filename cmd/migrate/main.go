package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"updown-trader/internal/config"
	"updown-trader/internal/db"
	"updown-trader/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const usage = "usage: migrate [up|down|version] [steps]"

var errUsage = errors.New(usage)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	initLoggerFunc      = logger.Init
	connectPostgresFunc = db.Connect
	newRunnerFunc       = func(pool *pgxpool.Pool) commandRunner { return newRunner(pool) }
)

// commandRunner is the schema side of the trade mirror and model registry tables.
type commandRunner interface {
	Up(ctx context.Context, all []migration) (int, error)
	Down(ctx context.Context, all []migration, steps int) (int, error)
	Version(ctx context.Context) (int64, string, error)
}

func main() {
	if err := loadEnvFunc(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := loadConfigFunc()
	initLoggerFunc(cfg.LogLevel, cfg.LogFormat)

	if err := run(context.Background(), *cfg, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
}

func run(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd := args[0]
	steps, err := parseSteps(cmd, args[1:])
	if err != nil {
		return err
	}
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	pool, err := connectPostgresFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL is required")
	}
	defer pool.Close()

	r := newRunnerFunc(pool)
	switch cmd {
	case "up":
		n, err := r.Up(ctx, all)
		if err != nil {
			return err
		}
		log.Info().Int("applied", n).Int("known", len(all)).Msg("migrations up complete")
	case "down":
		n, err := r.Down(ctx, all, steps)
		if err != nil {
			return err
		}
		log.Info().Int("rolled_back", n).Msg("migrations down complete")
	case "version":
		v, name, err := r.Version(ctx)
		if err != nil {
			return err
		}
		if v == 0 {
			log.Info().Msg("no migrations applied")
			return nil
		}
		log.Info().Int64("version", v).Str("name", name).Msg("current schema version")
	}
	return nil
}

// parseSteps validates the command and its optional rollback step count.
func parseSteps(cmd string, rest []string) (int, error) {
	switch cmd {
	case "up", "version":
		return 0, nil
	case "down":
		if len(rest) == 0 {
			return 1, nil
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid down steps %q: %w", rest[0], errUsage)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
