package app

import "github.com/shopspring/decimal"

// ConvertRequest is the input for converting an amount between currencies.
// From and To are currency codes or ids.
type ConvertRequest struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

// ExportReportRequest is the input for exporting a report artifact.
type ExportReportRequest struct {
	Type   string
	Upload bool // store the artifact in S3 and return its URL
}
