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

	"ms-admission/internal/config"
	"ms-admission/internal/database/migrations"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
)

// Schema management tool: applies or rolls back migrations, optionally
// seeding a demo event with VIP locations for local development.
func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	seed := flag.Bool("seed", false, "insert demo inventory after migrating")
	dir := flag.String("dir", "./migrations", "migrations directory")
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

	opts := migrations.DefaultOptions()
	opts.MigrationsDir = *dir
	runner := migrations.NewRunner(bunDB, opts, log)
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration down failed: %v", err))
		}
		log.Info("DATABASE", "All migrations rolled back")
		return
	}

	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration up failed: %v", err))
	}
	log.Info("DATABASE", "Migrations applied")

	if *seed {
		if err := seedDemoInventory(context.Background(), bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Seeding failed: %v", err))
		}
		log.Info("DATABASE", "Demo inventory seeded")
	}
}

func seedDemoInventory(ctx context.Context, db *bun.DB) error {
	now := time.Now()
	configs := []models.InventoryConfig{
		{EventID: "demo-night-001", Location: "front_stage", UnitPrice: 45000, StockLimit: 8, CapacityPerUnit: 10, CreatedAt: now, UpdatedAt: now},
		{EventID: "demo-night-001", Location: "mezzanine", UnitPrice: 30000, StockLimit: 12, CapacityPerUnit: 8, CreatedAt: now, UpdatedAt: now},
		{EventID: "demo-night-001", Location: "terrace", UnitPrice: 22000, StockLimit: 6, CapacityPerUnit: 6, CreatedAt: now, UpdatedAt: now},
	}
	_, err := db.NewInsert().
		Model(&configs).
		On("CONFLICT (event_id, location) DO NOTHING").
		Exec(ctx)
	return err
}
