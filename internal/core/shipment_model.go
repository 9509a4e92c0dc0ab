package core

import "github.com/shopspring/decimal"

// ShipmentStatus tracks where a container is in the import pipeline.
type ShipmentStatus string

const (
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentArrived   ShipmentStatus = "arrived"
	ShipmentCustoms   ShipmentStatus = "customs"
	ShipmentDelivered ShipmentStatus = "delivered"
)

// ShipmentItem is one item carried in a shipment.
type ShipmentItem struct {
	ItemID   string          `json:"itemId" validate:"required"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	Weight   decimal.Decimal `json:"weight" validate:"decgte0"`
	Volume   decimal.Decimal `json:"volume" validate:"decgte0"`
}

// Shipment is an inbound container shipment.
type Shipment struct {
	Base
	ShipmentNumber  string          `json:"shipmentNumber" validate:"required"`
	BillOfLading    string          `json:"billOfLading"`
	ContainerNumber string          `json:"containerNumber"`
	Status          ShipmentStatus  `json:"status" validate:"required,oneof=in_transit arrived customs delivered"`
	DepartureDate   string          `json:"departureDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ArrivalDate     string          `json:"arrivalDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ShippingCost    decimal.Decimal `json:"shippingCost" validate:"decgte0"`
	CustomsFees     decimal.Decimal `json:"customsFees" validate:"decgte0"`
	Insurance       decimal.Decimal `json:"insurance" validate:"decgte0"`
	Items           []ShipmentItem  `json:"items" validate:"dive"`
}

// LandedCost is shipping + customs + insurance.
func (s Shipment) LandedCost() decimal.Decimal {
	return s.ShippingCost.Add(s.CustomsFees).Add(s.Insurance)
}

// TotalWeight sums the weight of every carried line.
func (s Shipment) TotalWeight() decimal.Decimal {
	w := decimal.Zero
	for _, it := range s.Items {
		w = w.Add(it.Weight)
	}
	return w
}

// References reports whether any line points at itemID.
func (s Shipment) References(itemID string) bool {
	for _, l := range s.Items {
		if l.ItemID == itemID {
			return true
		}
	}
	return false
}
