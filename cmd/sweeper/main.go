package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-admission/internal/archive"
	"ms-admission/internal/config"
	"ms-admission/internal/logger"
)

// One-shot sweep runner for operations: sweep expired reservations or
// backfill old rows without going through the service's admin API.
func main() {
	backfill := flag.Bool("backfill", false, "archive by age since purchase instead of expiry")
	ageHours := flag.Int("age-hours", 0, "override backfill age threshold in hours")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	sweeper := archive.NewSweeper(bunDB, nil, log, cfg.Sweep.BatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *backfill {
		age := cfg.Sweep.BackfillAge
		if *ageHours > 0 {
			age = time.Duration(*ageHours) * time.Hour
		}
		result, err := sweeper.Backfill(ctx, age)
		if err != nil {
			log.Fatal("SWEEP", fmt.Sprintf("Backfill failed: %v", err))
		}
		fmt.Printf("backfill: checked=%d archived=%d skipped=%d failed=%d\n",
			result.Checked, result.Archived, result.Skipped, result.Failed)
		return
	}

	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Fatal("SWEEP", fmt.Sprintf("Sweep failed: %v", err))
	}
	fmt.Printf("sweep: checked=%d archived=%d skipped=%d failed=%d\n",
		result.Checked, result.Archived, result.Skipped, result.Failed)
}
