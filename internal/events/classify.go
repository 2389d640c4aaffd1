package events

import "strings"

// Category is one of the fixed incident classes used to filter notifications.
type Category string

const (
	CategoryFire             Category = "FIRE"
	CategoryMedical          Category = "MEDICAL"
	CategoryTrafficCollision Category = "TRAFFIC_COLLISION"
	CategoryHazmat           Category = "HAZMAT"
)

// Categories lists every recognized category.
var Categories = []Category{CategoryFire, CategoryMedical, CategoryTrafficCollision, CategoryHazmat}

// Classify maps an incident to a category by case-insensitive substring
// matching against its type field. Patterns are evaluated in a fixed
// priority order: MEDICAL first, then TRAFFIC_COLLISION, then HAZMAT,
// with FIRE as the default. A type matching more than one pattern
// resolves to the first match in that order.
func Classify(inc Incident) Category {
	typ := strings.ToLower(inc.IncidentType)
	switch {
	case strings.Contains(typ, "medical"):
		return CategoryMedical
	case strings.Contains(typ, "traffic"),
		strings.Contains(typ, "collision"),
		strings.HasPrefix(typ, "tc"),
		strings.Contains(typ, "t/c"):
		return CategoryTrafficCollision
	case strings.Contains(typ, "haz"):
		return CategoryHazmat
	default:
		return CategoryFire
	}
}

// Label returns the human-readable notification title for a category.
func (c Category) Label() string {
	switch c {
	case CategoryMedical:
		return "Medical Call"
	case CategoryTrafficCollision:
		return "Traffic Collision"
	case CategoryHazmat:
		return "Hazardous Materials"
	default:
		return "Fire Call"
	}
}
