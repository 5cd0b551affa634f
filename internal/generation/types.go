package generation

import "strings"

// Equipment categories form a closed enum. Producer output naming anything
// else is coerced to CategoryHullDeck rather than rejected.
const (
	CategoryEngine      = "engine"
	CategoryRigging     = "rigging"
	CategoryElectrical  = "electrical"
	CategoryNavigation  = "navigation"
	CategorySafety      = "safety"
	CategoryPlumbing    = "plumbing"
	CategoryAnchoring   = "anchoring"
	CategoryHullDeck    = "hull_deck"
	CategoryElectronics = "electronics"
	CategoryGalley      = "galley"
	CategoryComfort     = "comfort"
	CategoryDinghy      = "dinghy"
)

// Replacement likelihood bands derived from equipment age.
const (
	LikelihoodLow    = "low"
	LikelihoodMedium = "medium"
	LikelihoodHigh   = "high"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Recurrence kinds: calendar-based or engine-hour-based.
const (
	RecurrenceTime  = "time"
	RecurrenceUsage = "usage"
)

var equipmentCategories = map[string]bool{
	CategoryEngine:      true,
	CategoryRigging:     true,
	CategoryElectrical:  true,
	CategoryNavigation:  true,
	CategorySafety:      true,
	CategoryPlumbing:    true,
	CategoryAnchoring:   true,
	CategoryHullDeck:    true,
	CategoryElectronics: true,
	CategoryGalley:      true,
	CategoryComfort:     true,
	CategoryDinghy:      true,
}

// AllCategories lists the closed category enum in prompt order.
func AllCategories() []string {
	return []string{
		CategoryEngine, CategoryRigging, CategoryElectrical, CategoryNavigation,
		CategorySafety, CategoryPlumbing, CategoryAnchoring, CategoryHullDeck,
		CategoryElectronics, CategoryGalley, CategoryComfort, CategoryDinghy,
	}
}

// NormalizeCategory maps producer spellings onto the closed enum, falling
// back to hull_deck for anything unrecognized.
func NormalizeCategory(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	c = strings.ReplaceAll(c, "/", "_")
	c = strings.ReplaceAll(c, "-", "_")
	c = strings.ReplaceAll(c, " ", "_")
	if equipmentCategories[c] {
		return c
	}
	return CategoryHullDeck
}

func normalizeLikelihood(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LikelihoodMedium:
		return LikelihoodMedium
	case LikelihoodHigh:
		return LikelihoodHigh
	default:
		return LikelihoodLow
	}
}

func normalizePriority(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// EquipmentPayload is the input of the two-phase equipment job.
type EquipmentPayload struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	BoatType     string   `json:"boatType,omitempty"`
	LengthMeters float64  `json:"lengthMeters,omitempty"`
	BuildYear    int      `json:"buildYear,omitempty"`
	Categories   []string `json:"categories"`
}

// EquipmentItem is one discovered piece of equipment. It lives only inside
// the job result; RegistryID links it to the persistent product registry
// when both manufacturer and model were identified.
type EquipmentItem struct {
	Index                 int               `json:"index"`
	Name                  string            `json:"name"`
	Category              string            `json:"category"`
	Manufacturer          string            `json:"manufacturer,omitempty"`
	Model                 string            `json:"model,omitempty"`
	Description           string            `json:"description,omitempty"`
	Specs                 map[string]string `json:"specs,omitempty"`
	ParentIndex           *int              `json:"parentIndex,omitempty"`
	ManufacturerURL       string            `json:"manufacturerUrl,omitempty"`
	DocumentationLinks    []string          `json:"documentationLinks,omitempty"`
	SparePartsLinks       []string          `json:"sparePartsLinks,omitempty"`
	ReplacementLikelihood string            `json:"replacementLikelihood"`
	ReplacementReason     *string           `json:"replacementReason"`
	RegistryID            uint              `json:"registryId,omitempty"`
}

// Recurrence describes how often a maintenance task repeats.
type Recurrence struct {
	Type                string `json:"type"`
	IntervalDays        *int   `json:"intervalDays,omitempty"`
	IntervalEngineHours *int   `json:"intervalEngineHours,omitempty"`
}

// MaintenanceTask is one upkeep task in the job result, tied to an
// equipment item by this job's index.
type MaintenanceTask struct {
	EquipmentIndex int        `json:"equipmentIndex"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	Recurrence     Recurrence `json:"recurrence"`
	EstimatedHours float64    `json:"estimatedHours,omitempty"`
	Source         string     `json:"source"`
}
