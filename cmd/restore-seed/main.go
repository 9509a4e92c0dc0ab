// restore-seed puts back the reference data a fresh install needs: the base
// currency with common import currencies, and a default warehouse. Records
// that already exist are left alone.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log"

	"inventory-admin/internal/app"
	"inventory-admin/internal/config"
	"inventory-admin/internal/core"

	"github.com/shopspring/decimal"
)

var currencies = []core.Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$", ExchangeRate: decimal.NewFromInt(1), IsBase: true},
	{Code: "SAR", Name: "Saudi Riyal", Symbol: "SR", ExchangeRate: decimal.RequireFromString("3.75")},
	{Code: "EUR", Name: "Euro", Symbol: "€", ExchangeRate: decimal.RequireFromString("0.92")},
	{Code: "CNY", Name: "Chinese Yuan", Symbol: "¥", ExchangeRate: decimal.RequireFromString("7.24")},
}

var defaultWarehouse = core.Location{
	Name:        "Main Warehouse",
	Kind:        core.LocationWarehouse,
	Capacity:    10000,
	Description: "Default receiving warehouse",
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	svc, backend, cleanup, err := app.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer cleanup()

	existing, err := svc.Currencies().GetAll(ctx)
	if err != nil {
		log.Fatalf("Failed to read currencies: %v", err)
	}
	have := make(map[string]bool, len(existing))
	hasBase := false
	for _, c := range existing {
		have[c.Code] = true
		hasBase = hasBase || c.IsBase
	}

	log.Printf("Restoring currencies in %s storage...", backend.Name)
	for _, c := range currencies {
		if have[c.Code] {
			continue
		}
		if c.IsBase && hasBase {
			// Rates below are relative to USD; an existing base is kept as is.
			continue
		}
		if _, err := svc.Currencies().Add(ctx, c); err != nil {
			log.Fatalf("Failed to restore currency %s: %v", c.Code, err)
		}
		log.Printf("  added %s", c.Code)
	}

	log.Println("Restoring default warehouse...")
	locations, err := svc.Locations().GetAll(ctx)
	if err != nil {
		log.Fatalf("Failed to read locations: %v", err)
	}
	for _, l := range locations {
		if l.Name == defaultWarehouse.Name {
			log.Println("Seed data restored successfully.")
			return
		}
	}
	if _, err := svc.Locations().Add(ctx, defaultWarehouse); err != nil {
		log.Fatalf("Failed to restore warehouse: %v", err)
	}
	log.Println("Seed data restored successfully.")
}
