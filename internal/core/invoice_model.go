package core

import "github.com/shopspring/decimal"

// InvoiceStatus is the payment state of a supplier invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceItem is one line on an invoice. Total = Quantity * UnitPrice.
type InvoiceItem struct {
	ItemID    string          `json:"itemId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"decgte0"`
	Total     decimal.Decimal `json:"total"`
}

// Invoice is a supplier invoice with embedded line items.
// IssueDate and DueDate are YYYY-MM-DD strings.
type Invoice struct {
	Base
	InvoiceNumber string          `json:"invoiceNumber" validate:"required"`
	SupplierID    string          `json:"supplierId" validate:"required"`
	IssueDate     string          `json:"issueDate" validate:"required,datetime=2006-01-02"`
	DueDate       string          `json:"dueDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status        InvoiceStatus   `json:"status" validate:"required,oneof=pending paid cancelled"`
	Items         []InvoiceItem   `json:"items" validate:"dive"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CurrencyID    string          `json:"currencyId,omitempty"`
}

// Recalculate recomputes every line total and the invoice total.
func (inv *Invoice) Recalculate() {
	total := decimal.Zero
	for i := range inv.Items {
		line := &inv.Items[i]
		line.Total = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(line.Total)
	}
	inv.TotalAmount = total
}

// References reports whether any line points at itemID.
func (inv Invoice) References(itemID string) bool {
	for _, l := range inv.Items {
		if l.ItemID == itemID {
			return true
		}
	}
	return false
}
