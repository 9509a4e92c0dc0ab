package mapper

// Location stores its usage as current_usage while the application calls it
// currentStock, which the mechanical rename cannot derive.
const (
	locationAppUsage       = "currentStock"
	locationPersistedUsage = "current_usage"
)

// LocationToPersisted converts a location record, renaming currentStock to
// current_usage.
func LocationToPersisted(rec map[string]any) map[string]any {
	out := RecordToPersisted(rec)
	if out == nil {
		return nil
	}
	if v, ok := out["current_stock"]; ok {
		delete(out, "current_stock")
		out[locationPersistedUsage] = v
	}
	return out
}

// LocationToApplication converts a persisted location row, renaming
// current_usage to currentStock.
func LocationToApplication(rec map[string]any) map[string]any {
	out := RecordToApplication(rec)
	if out == nil {
		return nil
	}
	if v, ok := out["currentUsage"]; ok {
		delete(out, "currentUsage")
		out[locationAppUsage] = v
	}
	return out
}

// Pair holds the two directions of conversion for one collection.
type Pair struct {
	ToPersisted   func(map[string]any) map[string]any
	ToApplication func(map[string]any) map[string]any
}

// ForCollection returns the conversion pair for a collection, applying the
// location special case where needed.
func ForCollection(collection string) Pair {
	if collection == "locations" {
		return Pair{ToPersisted: LocationToPersisted, ToApplication: LocationToApplication}
	}
	return Pair{ToPersisted: RecordToPersisted, ToApplication: RecordToApplication}
}
