package generation

import (
	"fmt"
	"strings"
)

const researchSystemPrompt = `You are a marine equipment researcher. You only report equipment you can trace to a verifiable source (manufacturer documentation, builder specifications, owner manuals). You never guess or fabricate. Your output must be a single JSON document; any prose outside the JSON is ignored.`

const taskSystemPrompt = `You are a marine maintenance planner. Every interval you state must be traceable to manufacturer guidance or accepted marine practice; omit tasks you cannot back. Your output must be a single JSON document.`

// buildResearchPrompt constructs the phase-1 research instruction.
// currentYear feeds the age-banding policy when a build year is known.
func buildResearchPrompt(p EquipmentPayload, currentYear int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Research the factory and commonly fitted equipment of the boat %q", strings.TrimSpace(p.Make+" "+p.Model))
	if p.BoatType != "" {
		fmt.Fprintf(&b, " (type: %s)", p.BoatType)
	}
	if p.LengthMeters > 0 {
		fmt.Fprintf(&b, " (length: %.1f m)", p.LengthMeters)
	}
	if p.BuildYear > 0 {
		fmt.Fprintf(&b, " (build year: %d)", p.BuildYear)
	}
	b.WriteString(".\n\n")

	cats := p.Categories
	if len(cats) == 0 {
		cats = AllCategories()
	}
	fmt.Fprintf(&b, "Only include equipment in these categories: %s.\n", strings.Join(cats, ", "))
	fmt.Fprintf(&b, "The \"category\" field of every item must be exactly one of: %s.\n\n", strings.Join(AllCategories(), ", "))

	b.WriteString("Rules:\n")
	b.WriteString("- Every item must be traceable to a verifiable source. If you cannot verify an item exists on this boat, omit it entirely. Never guess manufacturers or models.\n")
	b.WriteString("- Sub-components reference their parent through \"parentIndex\" (the parent's \"index\"). Top-level items have no \"parentIndex\".\n")
	b.WriteString("- \"manufacturerUrl\", \"documentationLinks\" and \"sparePartsLinks\" must be absolute http(s) URLs you verified; otherwise leave them out.\n")

	if p.BuildYear > 0 {
		age := currentYear - p.BuildYear
		b.WriteString("\nReplacement likelihood policy (the boat is ")
		fmt.Fprintf(&b, "%d years old):\n", age)
		b.WriteString("- Boats under 5 years old: every item is \"low\".\n")
		b.WriteString("- Engines older than 20 years: \"high\". 10-20 years: \"medium\".\n")
		b.WriteString("- Batteries and electrical components older than 6 years: \"high\".\n")
		b.WriteString("- Standing rigging older than 15 years: \"high\". 10-15 years: \"medium\".\n")
		b.WriteString("- Set \"replacementLikelihood\" accordingly and give a one-sentence \"replacementReason\" whenever it is not \"low\".\n")
	} else {
		b.WriteString("\nThe build year is unknown: set \"replacementLikelihood\" to \"low\" for every item and leave \"replacementReason\" null.\n")
	}

	b.WriteString("\nRespond with JSON of this exact shape:\n")
	b.WriteString(`{"equipment":[{"index":0,"name":"...","category":"engine","manufacturer":"...","model":"...","description":"...","specs":{"power":"..."},"parentIndex":null,"manufacturerUrl":"https://...","documentationLinks":["https://..."],"sparePartsLinks":["https://..."],"replacementLikelihood":"low","replacementReason":null}]}`)
	b.WriteString("\n")

	return b.String()
}

// buildTaskPrompt constructs the narrower phase-2 instruction for the
// items that were not served from cache.
func buildTaskPrompt(items []EquipmentItem) string {
	var b strings.Builder

	b.WriteString("Generate the maintenance schedule for the following boat equipment. For every item, list the recurring tasks a diligent owner performs.\n\nEquipment:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- index %d: %s (category: %s", it.Index, it.Name, it.Category)
		if it.Manufacturer != "" {
			fmt.Fprintf(&b, ", manufacturer: %s", it.Manufacturer)
		}
		if it.Model != "" {
			fmt.Fprintf(&b, ", model: %s", it.Model)
		}
		b.WriteString(")\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Every interval must be traceable to manufacturer guidance or accepted marine practice; omit tasks you cannot back.\n")
	fmt.Fprintf(&b, "- \"category\" must be exactly one of: %s.\n", strings.Join(AllCategories(), ", "))
	b.WriteString("- \"priority\" must be exactly one of: low, medium, high.\n")
	b.WriteString("- \"recurrence.type\" is \"time\" (with \"intervalDays\") or \"usage\" (with \"intervalEngineHours\").\n")

	b.WriteString("\nRespond with JSON of this exact shape:\n")
	b.WriteString(`{"tasks":[{"equipmentIndex":0,"title":"...","description":"...","category":"engine","priority":"medium","recurrence":{"type":"time","intervalDays":365},"estimatedHours":1.5}]}`)
	b.WriteString("\n")

	return b.String()
}
