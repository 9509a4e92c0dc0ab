package app

import (
	"context"
	"fmt"

	"inventory-admin/internal/core"
	"inventory-admin/internal/numbering"
	"inventory-admin/internal/store"

	"github.com/shopspring/decimal"
)

// Numbers are only minted on Add, and only when the caller left the field blank.

func (s *appService) assignItemReference(ctx context.Context, current, next *core.Item) error {
	if current == nil && next.Reference == "" {
		next.Reference = s.numbers.Next(ctx, "item", numbering.DefaultPrefixes["item"])
	}
	return nil
}

func (s *appService) assignInvoiceNumber(ctx context.Context, current, next *core.Invoice) error {
	if current == nil && next.InvoiceNumber == "" {
		next.InvoiceNumber = s.numbers.Next(ctx, "invoice", numbering.DefaultPrefixes["invoice"])
	}
	return nil
}

func (s *appService) assignShipmentNumber(ctx context.Context, current, next *core.Shipment) error {
	if current == nil && next.ShipmentNumber == "" {
		next.ShipmentNumber = s.numbers.Next(ctx, "shipment", numbering.DefaultPrefixes["shipment"])
	}
	return nil
}

func recalculateInvoice(_ context.Context, _, next *core.Invoice) error {
	next.Recalculate()
	return nil
}

// enforceSingleBase keeps exactly one base currency once one exists. The base
// flag cannot move between currencies because every rate is relative to it.
func (s *appService) enforceSingleBase(ctx context.Context, current, next *core.Currency) error {
	var id string
	if current != nil {
		id = current.ID
	}

	if next.IsBase {
		if !next.ExchangeRate.Equal(decimal.NewFromInt(1)) {
			return &core.ValidationError{Fields: map[string]string{"exchangeRate": "must be 1 for the base currency"}}
		}
		bases, err := s.backend.Find(ctx, core.CollectionCurrencies, "is_base", true)
		if err != nil {
			return fmt.Errorf("check base currency: %w", err)
		}
		for _, b := range bases {
			if b.ID() != id {
				code, _ := b["code"].(string)
				return &core.ValidationError{Fields: map[string]string{
					"isBase": fmt.Sprintf("%s is already the base currency", code),
				}}
			}
		}
		return nil
	}

	if current != nil && current.IsBase {
		all, err := s.backend.List(ctx, core.CollectionCurrencies)
		if err != nil {
			return fmt.Errorf("check base currency: %w", err)
		}
		if others(all, id) > 0 {
			return &core.ValidationError{Fields: map[string]string{
				"isBase": "cannot unset the base currency while other currencies exist",
			}}
		}
	}
	return nil
}

func others(recs []store.Record, id string) int {
	n := 0
	for _, r := range recs {
		if r.ID() != id {
			n++
		}
	}
	return n
}
