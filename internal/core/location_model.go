package core

// LocationKind classifies a storage location.
type LocationKind string

const (
	LocationWarehouse LocationKind = "warehouse"
	LocationShelf     LocationKind = "shelf"
	LocationSection   LocationKind = "section"
)

// Location is a physical storage place. CurrentStock is persisted as
// current_usage and must not exceed Capacity.
type Location struct {
	Base
	Name         string       `json:"name" validate:"required"`
	Kind         LocationKind `json:"kind" validate:"required,oneof=warehouse shelf section"`
	Capacity     int          `json:"capacity" validate:"gte=0"`
	CurrentStock int          `json:"currentStock" validate:"gte=0,ltefield=Capacity"`
	Description  string       `json:"description,omitempty"`
}

// FreeCapacity returns the remaining room, never negative.
func (l Location) FreeCapacity() int {
	if l.CurrentStock >= l.Capacity {
		return 0
	}
	return l.Capacity - l.CurrentStock
}
