package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"inventory-admin/internal/core"
	"inventory-admin/internal/entity"
	"inventory-admin/internal/events"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/migrate"
	"inventory-admin/internal/numbering"
	"inventory-admin/internal/report"
	"inventory-admin/internal/store"
	"inventory-admin/internal/store/local"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUploadNotConfigured = errors.New("report upload not configured: set S3_BUCKET and S3_REGION")
	ErrNotLocal            = errors.New("migration reads from the local backend; set STORAGE_BACKEND=local")
)

// Deps are the collaborators NewAppService wires together.
type Deps struct {
	Backend     store.Backend
	BackendName string
	// Local is set when Backend is the on-device store. It is the migration
	// source and holds the cloud-mode preference.
	Local             *local.Store
	Publisher         events.Publisher
	Uploader          *report.Uploader
	LowStockThreshold int
}

type appService struct {
	backend     store.Backend
	backendName string
	local       *local.Store
	publisher   events.Publisher
	uploader    *report.Uploader
	validate    *validator.Validate
	checker     *integrity.Checker
	numbers     *numbering.Service
	reports     *report.Service

	items      *entity.Store[core.Item]
	suppliers  *entity.Store[core.Supplier]
	invoices   *entity.Store[core.Invoice]
	locations  *entity.Store[core.Location]
	shipments  *entity.Store[core.Shipment]
	currencies *entity.Store[core.Currency]
}

// NewAppService constructs an ApplicationService over d.Backend. Every entity
// store validates, gates deletes on the relationship checker and publishes
// change events through d.Publisher.
func NewAppService(d Deps) (ApplicationService, error) {
	if d.Backend == nil {
		return nil, errors.New("app: backend is required")
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	s := &appService{
		backend:     d.Backend,
		backendName: d.BackendName,
		local:       d.Local,
		publisher:   d.Publisher,
		uploader:    d.Uploader,
		validate:    core.NewValidator(),
		checker:     integrity.NewChecker(d.Backend),
		numbers:     numbering.NewService(d.Backend),
	}

	var err error
	if s.items, err = newStore[core.Item](s, core.CollectionItems, s.assignItemReference); err != nil {
		return nil, err
	}
	if s.suppliers, err = newStore[core.Supplier](s, core.CollectionSuppliers); err != nil {
		return nil, err
	}
	if s.invoices, err = newStore[core.Invoice](s, core.CollectionInvoices, s.assignInvoiceNumber, recalculateInvoice); err != nil {
		return nil, err
	}
	if s.locations, err = newStore[core.Location](s, core.CollectionLocations); err != nil {
		return nil, err
	}
	if s.shipments, err = newStore[core.Shipment](s, core.CollectionShipments, s.assignShipmentNumber); err != nil {
		return nil, err
	}
	if s.currencies, err = newStore[core.Currency](s, core.CollectionCurrencies, s.enforceSingleBase); err != nil {
		return nil, err
	}

	s.reports = report.NewService(report.Sources{
		Items:      s.items,
		Suppliers:  s.suppliers,
		Invoices:   s.invoices,
		Locations:  s.locations,
		Shipments:  s.shipments,
		Currencies: s.currencies,
	}, d.LowStockThreshold)
	return s, nil
}

func newStore[T any](s *appService, collection string, hooks ...entity.BeforeWrite[T]) (*entity.Store[T], error) {
	kind, ok := integrity.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("app: no relationship check for %s", collection)
	}
	opts := []entity.Option[T]{
		entity.WithValidator(func(v T) error { return core.Validate(s.validate, v) }),
		entity.WithGuard[T](s.checker.Guard(kind)),
		entity.WithPublisher[T](s.publisher),
	}
	for _, h := range hooks {
		opts = append(opts, entity.WithBeforeWrite(h))
	}
	return entity.New[T](s.backend, collection, opts...)
}

func (s *appService) Items() *entity.Store[core.Item]          { return s.items }
func (s *appService) Suppliers() *entity.Store[core.Supplier]  { return s.suppliers }
func (s *appService) Invoices() *entity.Store[core.Invoice]    { return s.invoices }
func (s *appService) Locations() *entity.Store[core.Location]  { return s.locations }
func (s *appService) Shipments() *entity.Store[core.Shipment]  { return s.shipments }
func (s *appService) Currencies() *entity.Store[core.Currency] { return s.currencies }

// ── Numbering ─────────────────────────────────────────────────────────────────

func (s *appService) NextNumber(ctx context.Context, entityType string) (*NumberResult, error) {
	n, err := s.numbers.NextDefault(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return &NumberResult{EntityType: entityType, Number: n.Value, Sequence: n.Seq}, nil
}

// ── Relationship checks ───────────────────────────────────────────────────────

func (s *appService) CheckDeletable(ctx context.Context, collection, id string) (*integrity.Report, error) {
	kind, ok := integrity.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownCollection, collection)
	}
	return s.checker.Check(ctx, kind, id)
}

// ── Reports ───────────────────────────────────────────────────────────────────

func (s *appService) Report(ctx context.Context, reportType string) (any, error) {
	return s.reports.Build(ctx, reportType)
}

func (s *appService) ExportReport(ctx context.Context, req ExportReportRequest) (*ExportResult, error) {
	if req.Upload && s.uploader == nil {
		return nil, ErrUploadNotConfigured
	}
	a, err := s.reports.Export(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{Artifact: a}
	if req.Upload {
		url, err := s.uploader.Upload(ctx, a)
		if err != nil {
			return nil, err
		}
		log.Printf("app: uploaded %s report to %s", req.Type, url)
		res.URL = url
	}
	return res, nil
}

// ── Currencies ────────────────────────────────────────────────────────────────

func (s *appService) ConvertCurrency(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	list, err := s.currencies.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	table, err := core.NewCurrencyTable(list)
	if err != nil {
		return nil, err
	}
	converted, err := table.Convert(req.Amount, req.From, req.To)
	if err != nil {
		return nil, err
	}
	return &ConvertResult{
		Amount:       req.Amount,
		From:         req.From,
		To:           req.To,
		Converted:    converted,
		BaseCurrency: table.Base().Code,
	}, nil
}

// ── Storage ───────────────────────────────────────────────────────────────────

func (s *appService) MigrateToCloud(ctx context.Context, target store.BatchWriter) (*migrate.Result, error) {
	if s.local == nil {
		return nil, ErrNotLocal
	}
	return migrate.New(s.local, s.local, target).Run(ctx)
}

func (s *appService) Health(ctx context.Context) (*HealthResult, error) {
	if _, err := s.backend.List(ctx, core.CollectionCurrencies); err != nil {
		return nil, fmt.Errorf("backend %s unreachable: %w", s.backendName, err)
	}
	res := &HealthResult{Backend: s.backendName}
	if s.local != nil {
		on, err := s.local.CloudMode(ctx)
		if err != nil {
			return nil, err
		}
		res.CloudMode = on
	}
	return res, nil
}

func (s *appService) Close() {
	s.items.Close()
	s.suppliers.Close()
	s.invoices.Close()
	s.locations.Close()
	s.shipments.Close()
	s.currencies.Close()
}
