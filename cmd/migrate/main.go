package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status|version]

import (
	"context"
	"log"
	"os"

	"knowledge-hub/internal/shared/config"
	"knowledge-hub/internal/shared/storage/db"
	"knowledge-hub/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init("knowledge-hub-migrate", cfg.LogLevel)
	ctx := context.Background()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
}
