package app

import (
	"context"

	"inventory-admin/internal/core"
	"inventory-admin/internal/entity"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/migrate"
	"inventory-admin/internal/store"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// No adapter may reach a backend, the numbering service or the report builder
// directly.
type ApplicationService interface {
	// Entity stores. Each is owned by the service and closed by Close.
	Items() *entity.Store[core.Item]
	Suppliers() *entity.Store[core.Supplier]
	Invoices() *entity.Store[core.Invoice]
	Locations() *entity.Store[core.Location]
	Shipments() *entity.Store[core.Shipment]
	Currencies() *entity.Store[core.Currency]

	// Numbering
	NextNumber(ctx context.Context, entityType string) (*NumberResult, error)

	// Relationship checks
	CheckDeletable(ctx context.Context, collection, id string) (*integrity.Report, error)

	// Reports
	Report(ctx context.Context, reportType string) (any, error)
	ExportReport(ctx context.Context, req ExportReportRequest) (*ExportResult, error)

	// Currencies
	ConvertCurrency(ctx context.Context, req ConvertRequest) (*ConvertResult, error)

	// Storage
	MigrateToCloud(ctx context.Context, target store.BatchWriter) (*migrate.Result, error)
	Health(ctx context.Context) (*HealthResult, error)

	// Close stops every store's change feed.
	Close()
}
