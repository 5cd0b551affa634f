package generation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ExtractJSON pulls a JSON document out of raw producer output. The
// producer may return bare JSON, JSON inside a fenced block, or JSON
// wrapped in prose; the fallback chain is fenced block, then the substring
// between the first '{' and the last '}', then the raw trimmed text.
func ExtractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if block, ok := fencedBlock(trimmed); ok {
		return block
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}

	return trimmed
}

func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// snippet returns a bounded prefix of raw producer output for diagnostics.
func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// validAbsoluteURL keeps only well-formed absolute http(s) links; anything
// else is dropped rather than passed through.
func validAbsoluteURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func filterURLs(links []string) []string {
	var out []string
	for _, l := range links {
		if validAbsoluteURL(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

// wireEquipmentItem is the loosely typed shape read from the producer.
type wireEquipmentItem struct {
	Index                 *int              `json:"index"`
	Name                  string            `json:"name"`
	Category              string            `json:"category"`
	Manufacturer          string            `json:"manufacturer"`
	Model                 string            `json:"model"`
	Description           string            `json:"description"`
	Specs                 map[string]string `json:"specs"`
	ParentIndex           *int              `json:"parentIndex"`
	ManufacturerURL       string            `json:"manufacturerUrl"`
	DocumentationLinks    []string          `json:"documentationLinks"`
	SparePartsLinks       []string          `json:"sparePartsLinks"`
	ReplacementLikelihood string            `json:"replacementLikelihood"`
	ReplacementReason     *string           `json:"replacementReason"`
}

type equipmentResponse struct {
	Equipment []wireEquipmentItem `json:"equipment"`
}

// parseEquipment decodes and coerces the phase-1 producer output.
// hasBuildYear controls the replacement-likelihood policy: with no build
// year every item is forced to low likelihood with no justification.
func parseEquipment(raw string, hasBuildYear bool) ([]EquipmentItem, error) {
	doc := ExtractJSON(raw)

	var resp equipmentResponse
	if err := json.Unmarshal([]byte(doc), &resp); err != nil {
		// Some producers return the bare array.
		var bare []wireEquipmentItem
		if err2 := json.Unmarshal([]byte(doc), &bare); err2 != nil {
			return nil, fmt.Errorf("equipment response is not valid JSON: %w", err)
		}
		resp.Equipment = bare
	}
	if len(resp.Equipment) == 0 {
		return nil, fmt.Errorf("equipment response contains no items")
	}

	items := make([]EquipmentItem, 0, len(resp.Equipment))
	for pos, w := range resp.Equipment {
		if strings.TrimSpace(w.Name) == "" {
			continue
		}

		item := EquipmentItem{
			Index:              pos,
			Name:               strings.TrimSpace(w.Name),
			Category:           NormalizeCategory(w.Category),
			Manufacturer:       strings.TrimSpace(w.Manufacturer),
			Model:              strings.TrimSpace(w.Model),
			Description:        strings.TrimSpace(w.Description),
			Specs:              w.Specs,
			ParentIndex:        w.ParentIndex,
			DocumentationLinks: filterURLs(w.DocumentationLinks),
			SparePartsLinks:    filterURLs(w.SparePartsLinks),
		}
		if w.Index != nil && *w.Index >= 0 {
			item.Index = *w.Index
		}
		if validAbsoluteURL(w.ManufacturerURL) {
			item.ManufacturerURL = strings.TrimSpace(w.ManufacturerURL)
		}

		if hasBuildYear {
			item.ReplacementLikelihood = normalizeLikelihood(w.ReplacementLikelihood)
			if w.ReplacementReason != nil && strings.TrimSpace(*w.ReplacementReason) != "" {
				reason := strings.TrimSpace(*w.ReplacementReason)
				item.ReplacementReason = &reason
			}
		} else {
			item.ReplacementLikelihood = LikelihoodLow
			item.ReplacementReason = nil
		}

		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("equipment response contains no usable items")
	}

	// A parent reference must point at another item's index; anything else
	// (self-reference, dangling index) becomes a top-level item.
	known := make(map[int]bool, len(items))
	for _, it := range items {
		known[it.Index] = true
	}
	for i := range items {
		p := items[i].ParentIndex
		if p == nil {
			continue
		}
		if *p < 0 || *p == items[i].Index || !known[*p] {
			items[i].ParentIndex = nil
		}
	}

	return items, nil
}

// wireTask is the loosely typed phase-2 shape.
type wireTask struct {
	EquipmentIndex *int    `json:"equipmentIndex"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Priority       string  `json:"priority"`
	Recurrence     *struct {
		Type                string `json:"type"`
		IntervalDays        *int   `json:"intervalDays"`
		IntervalEngineHours *int   `json:"intervalEngineHours"`
	} `json:"recurrence"`
	EstimatedHours float64 `json:"estimatedHours"`
}

type taskResponse struct {
	Tasks []wireTask `json:"tasks"`
}

// Fallback intervals for recurrences the producer left unusable.
const (
	defaultIntervalDays  = 365
	defaultIntervalHours = 100
)

// parseTasks decodes and coerces the phase-2 producer output. validIndexes
// is the set of equipment indexes tasks may reference; tasks pointing
// elsewhere are dropped.
func parseTasks(raw string, validIndexes map[int]bool) ([]MaintenanceTask, error) {
	doc := ExtractJSON(raw)

	var resp taskResponse
	if err := json.Unmarshal([]byte(doc), &resp); err != nil {
		var bare []wireTask
		if err2 := json.Unmarshal([]byte(doc), &bare); err2 != nil {
			return nil, fmt.Errorf("task response is not valid JSON: %w", err)
		}
		resp.Tasks = bare
	}

	tasks := make([]MaintenanceTask, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		if strings.TrimSpace(w.Title) == "" {
			continue
		}
		if w.EquipmentIndex == nil || !validIndexes[*w.EquipmentIndex] {
			continue
		}

		task := MaintenanceTask{
			EquipmentIndex: *w.EquipmentIndex,
			Title:          strings.TrimSpace(w.Title),
			Description:    strings.TrimSpace(w.Description),
			Category:       NormalizeCategory(w.Category),
			Priority:       normalizePriority(w.Priority),
			EstimatedHours: w.EstimatedHours,
			Source:         "ai",
		}
		if task.EstimatedHours < 0 {
			task.EstimatedHours = 0
		}

		task.Recurrence = coerceRecurrence(w)
		tasks = append(tasks, task)
	}

	return tasks, nil
}

func coerceRecurrence(w wireTask) Recurrence {
	if w.Recurrence != nil && strings.EqualFold(strings.TrimSpace(w.Recurrence.Type), RecurrenceUsage) {
		hours := defaultIntervalHours
		if w.Recurrence.IntervalEngineHours != nil && *w.Recurrence.IntervalEngineHours > 0 {
			hours = *w.Recurrence.IntervalEngineHours
		}
		return Recurrence{Type: RecurrenceUsage, IntervalEngineHours: &hours}
	}

	days := defaultIntervalDays
	if w.Recurrence != nil && w.Recurrence.IntervalDays != nil && *w.Recurrence.IntervalDays > 0 {
		days = *w.Recurrence.IntervalDays
	}
	return Recurrence{Type: RecurrenceTime, IntervalDays: &days}
}
