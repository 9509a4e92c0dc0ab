package app

import (
	"inventory-admin/internal/report"

	"github.com/shopspring/decimal"
)

// NumberResult holds a freshly minted document number. Sequence is omitted
// when the counter was unavailable and the number is time-based.
type NumberResult struct {
	EntityType string `json:"entityType"`
	Number     string `json:"number"`
	Sequence   int64  `json:"sequence,omitempty"`
}

// ConvertResult holds a converted amount and the rates used.
type ConvertResult struct {
	Amount       decimal.Decimal `json:"amount"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Converted    decimal.Decimal `json:"converted"`
	BaseCurrency string          `json:"baseCurrency"`
}

// ExportResult holds an exported report and, when uploaded, where it lives.
type ExportResult struct {
	Artifact *report.Artifact `json:"artifact"`
	URL      string           `json:"url,omitempty"`
}

// HealthResult describes the active storage backend.
type HealthResult struct {
	Backend   string `json:"backend"`
	CloudMode bool   `json:"cloudMode"`
}
