package main

import (
	"context"
	"log"
	"time"

	"inventory-admin/internal/config"
	"inventory-admin/internal/db"
	"inventory-admin/internal/store/postgres"
)

// verify-db applies pending Postgres schema migrations and lists what is
// recorded in schema_migrations.
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.URL, db.WithMaxConns(cfg.Postgres.MaxConns))
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()
	log.Println("[CONNECT] success")

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("[MIGRATE] %v", err)
	}

	applied, err := postgres.Applied(ctx, pool)
	if err != nil {
		log.Fatalf("[LIST] %v", err)
	}
	for _, m := range applied {
		log.Printf("[APPLIED] %s %s %s %s", m.Version, m.Filename, m.Checksum[:12], m.AppliedAt.Format(time.RFC3339))
	}
	log.Printf("[DONE] %d migrations recorded", len(applied))
}
