package main

// Run result store migrations:
//   RESULT_STORE=sqlite go run ./cmd/migrate
//   DATABASE_URL=postgres://... go run ./cmd/migrate

import (
	"context"
	"log"
	"os"

	"ballet-compare/internal/bootstrap"
	"ballet-compare/internal/shared/config"
	"ballet-compare/internal/shared/storage/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}
	dialect, ok := bootstrap.Dialect(cfg.ResultStore)
	if !ok {
		log.Printf("RESULT_STORE=%s has nothing to migrate", cfg.ResultStore)
		return
	}
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, dialect, bootstrap.DSN(cfg), opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	log.Printf("migrations applied (%s)", dialect)
}
