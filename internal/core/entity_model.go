package core

import "time"

// Collection names as persisted by every backend.
const (
	CollectionItems      = "items"
	CollectionSuppliers  = "suppliers"
	CollectionInvoices   = "invoices"
	CollectionLocations  = "locations"
	CollectionShipments  = "shipments"
	CollectionCurrencies = "currencies"
	CollectionCounters   = "counters"
)

// BusinessCollections lists the collections that hold entities, in migration order.
// Counters are handled separately.
var BusinessCollections = []string{
	CollectionSuppliers,
	CollectionLocations,
	CollectionCurrencies,
	CollectionItems,
	CollectionInvoices,
	CollectionShipments,
}

// Base carries the identity and system-managed timestamps shared by all entities.
// ID and timestamps are assigned by the backend on insert.
type Base struct {
	ID        string    `json:"id" jsonschema:"readOnly=true"`
	CreatedAt time.Time `json:"createdAt" jsonschema:"readOnly=true"`
	UpdatedAt time.Time `json:"updatedAt" jsonschema:"readOnly=true"`
}

// Counter is a per-entity-type sequence used only to mint human-readable numbers.
type Counter struct {
	Base
	EntityType string `json:"entityType"`
	Value      int64  `json:"value"`
}
