package core

// Supplier represents a vendor goods are imported from.
type Supplier struct {
	Base
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contactPerson"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
	Country       string `json:"country"`
	PaymentTerms  string `json:"paymentTerms"`
}
