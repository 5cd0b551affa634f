package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bosun/internal/ai"
	"bosun/internal/jobs"
	"bosun/internal/models"
)

// RoutePayload is the input of the single-phase route job.
type RoutePayload struct {
	Waypoints          []RouteWaypoint `json:"waypoints"`
	DepartureDate      string          `json:"departureDate,omitempty"`
	CruisingSpeedKnots float64         `json:"cruisingSpeedKnots,omitempty"`
}

// RouteWaypoint is a named position.
type RouteWaypoint struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// RouteLeg is one segment of the planned route.
type RouteLeg struct {
	Waypoints      []RouteWaypoint `json:"waypoints"`
	DistanceNM     float64         `json:"distanceNm,omitempty"`
	EstimatedHours float64         `json:"estimatedHours,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// RouteHandler plans a sailing route in a single inference call. There is
// no cache and no partial-result salvage: structurally invalid output
// fails the job.
type RouteHandler struct {
	ai     ai.Client
	logger *zap.Logger
}

func NewRouteHandler(client ai.Client, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{ai: client, logger: logger}
}

const routeSystemPrompt = `You are a sailing route planner. You plan coastal and offshore routes between named waypoints, splitting them into day legs a cruising crew can sail. Your output must be a single JSON document.`

func (h *RouteHandler) Run(ctx context.Context, job *models.Job, progress jobs.ProgressContext) (map[string]interface{}, error) {
	var payload RoutePayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("invalid route payload: %w", err)
	}
	if len(payload.Waypoints) < 2 {
		return nil, fmt.Errorf("route payload needs at least two waypoints")
	}

	progress.Emit(ctx, "Building route prompt", 10)
	prompt := buildRoutePrompt(payload)

	progress.Emit(ctx, "Planning route", 30)
	rawOut, err := h.ai.Generate(ctx, ai.Request{
		System:      routeSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   4000,
	})
	if err != nil {
		return nil, fmt.Errorf("route planning call failed: %w", err)
	}

	legs, err := parseRoute(rawOut, payload.Waypoints)
	if err != nil {
		progress.EmitDetail(ctx, "Invalid route output", 70, snippet(rawOut, 500))
		return nil, err
	}

	progress.EmitFinal(ctx, "Done", 100)
	return map[string]interface{}{
		"legs":          legs,
		"waypointCount": len(payload.Waypoints),
	}, nil
}

func buildRoutePrompt(p RoutePayload) string {
	var b strings.Builder

	b.WriteString("Plan a sailing route through these waypoints, in order:\n")
	for i, wp := range p.Waypoints {
		fmt.Fprintf(&b, "%d. %s (%.4f, %.4f)\n", i+1, wp.Name, wp.Lat, wp.Lon)
	}
	if p.DepartureDate != "" {
		fmt.Fprintf(&b, "\nDeparture date: %s\n", p.DepartureDate)
	}
	if p.CruisingSpeedKnots > 0 {
		fmt.Fprintf(&b, "Cruising speed: %.1f knots\n", p.CruisingSpeedKnots)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Split the route into legs. Every leg has at least two waypoints with name, lat and lon.\n")
	b.WriteString("- The legs, concatenated, must visit every waypoint above in the given order. You may add intermediate waypoints.\n")

	b.WriteString("\nRespond with JSON of this exact shape:\n")
	b.WriteString(`{"legs":[{"waypoints":[{"name":"...","lat":0.0,"lon":0.0}],"distanceNm":42.0,"estimatedHours":7.0,"notes":"..."}]}`)
	b.WriteString("\n")

	return b.String()
}

type routeResponse struct {
	Legs []RouteLeg `json:"legs"`
}

// parseRoute decodes and structurally validates the producer output. A
// route is valid when it has at least one leg, every leg has at least two
// named waypoints with plausible coordinates, and the leg sequence visits
// every requested waypoint in order.
func parseRoute(raw string, requested []RouteWaypoint) ([]RouteLeg, error) {
	doc := ExtractJSON(raw)

	var resp routeResponse
	if err := json.Unmarshal([]byte(doc), &resp); err != nil {
		return nil, fmt.Errorf("route response is not valid JSON: %w", err)
	}
	if len(resp.Legs) == 0 {
		return nil, fmt.Errorf("route response contains no legs")
	}

	for i, leg := range resp.Legs {
		if len(leg.Waypoints) < 2 {
			return nil, fmt.Errorf("route leg %d has fewer than two waypoints", i+1)
		}
		for j, wp := range leg.Waypoints {
			if strings.TrimSpace(wp.Name) == "" {
				return nil, fmt.Errorf("route leg %d waypoint %d has no name", i+1, j+1)
			}
			if wp.Lat < -90 || wp.Lat > 90 || wp.Lon < -180 || wp.Lon > 180 {
				return nil, fmt.Errorf("route leg %d waypoint %q has out-of-range coordinates", i+1, wp.Name)
			}
		}
	}

	// The concatenated leg waypoints must contain the requested waypoints
	// as an ordered subsequence, matched by name.
	var flattened []string
	for _, leg := range resp.Legs {
		for _, wp := range leg.Waypoints {
			flattened = append(flattened, strings.ToLower(strings.TrimSpace(wp.Name)))
		}
	}
	pos := 0
	for _, want := range requested {
		name := strings.ToLower(strings.TrimSpace(want.Name))
		found := false
		for ; pos < len(flattened); pos++ {
			if flattened[pos] == name {
				found = true
				pos++
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("route does not visit waypoint %q", want.Name)
		}
	}

	return resp.Legs, nil
}

var _ jobs.Handler = (*RouteHandler)(nil)
