// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logger"
)

func main() {
	reset := flag.Bool("reset", false, "drop all tables before migrating")
	dir := flag.String("dir", "seed", "directory holding *.sql seed files")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("development")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.AppEnv)
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer conn.Close()

	if *reset {
		err = db.Reset(ctx, conn, log)
	} else {
		err = db.Migrate(conn, log)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("prepare schema")
	}

	n, err := applySeeds(ctx, conn, *dir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	log.Info().Int("files", n).Msg("database seeding completed")
}

// applySeeds runs every *.sql file in dir in lexical order, each in its own transaction.
func applySeeds(ctx context.Context, conn *sql.DB, dir string, log zerolog.Logger) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", file, err)
		}
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("execute %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit %s: %w", file, err)
		}
		log.Info().Str("file", file).Msg("seeded")
	}
	return len(files), nil
}
