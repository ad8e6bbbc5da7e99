package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/agriplan/internal/apperr"
)

// Result is a validated provider reply.  Raw holds the JSON object exactly
// as the provider produced it (minus any wrapping) and is what clients get.
type Result struct {
	Raw  json.RawMessage
	Plan Plan
}

// Plan is the typed view of a cultivation plan.  Pointer fields are the
// ones whose presence is checked.
type Plan struct {
	FeasibilityCheck       *Feasibility          `json:"feasibility_check"`
	VitalStats             *VitalStats           `json:"vital_stats,omitempty"`
	SoilAdjustmentDetailed *string               `json:"soil_adjustment_detailed,omitempty"`
	SoilComposition        *SoilComposition      `json:"soil_composition,omitempty"`
	FertilizerGuide        *FertilizerGuide      `json:"fertilizer_guide,omitempty"`
	OrganicWisdom          *OrganicWisdom        `json:"organic_wisdom,omitempty"`
	DiseaseTreatment       *DiseaseTreatment     `json:"disease_treatment,omitempty"`
	DeepPropagation        *DeepPropagation      `json:"deep_propagation,omitempty"`
	PropagationGuide       *PropagationGuide     `json:"propagation_guide,omitempty"`
	ActionTimeline         []TimelineStep        `json:"action_timeline"`
	ResilienceProfile      map[string]Resilience `json:"resilience_profile,omitempty"`
	TransplantAdvice       *TransplantAdvice     `json:"transplant_advice,omitempty"`
	EnvSummary             *EnvSummary           `json:"env_summary,omitempty"`
	SoilSummary            *string               `json:"soil_summary,omitempty"`
}

type Feasibility struct {
	IsPossible  *bool   `json:"is_possible"`
	StatusTitle *string `json:"status_title"`
	Reason      *string `json:"reason"`
}

type VitalStats struct {
	IdealTemp      string `json:"ideal_temp"`
	IdealHumidity  string `json:"ideal_humidity"`
	IdealPH        string `json:"ideal_ph"`
	SoilType       string `json:"soil_type"`
	SunRequirement string `json:"sun_requirement"`
}

type SoilComposition struct {
	PrimaryMix string `json:"primary_mix"`
	Amendments string `json:"amendments"`
	Layering   string `json:"layering"`
}

type FertilizerGuide struct {
	VegStageNPK          string `json:"veg_stage_npk"`
	FlowerStageNPK       string `json:"flower_stage_npk"`
	OrganicRecipe        string `json:"organic_recipe"`
	ApplicationFrequency string `json:"application_frequency"`
}

type OrganicWisdom struct {
	SoilPrep               string `json:"soil_prep"`
	FertilizerRecipe       string `json:"fertilizer_recipe"`
	PestControlRecipe      string `json:"pest_control_recipe"`
	MicroorganismTechnique string `json:"microorganism_technique"`
}

type DiseaseTreatment struct {
	Detected bool     `json:"detected"`
	Name     string   `json:"name"`
	Cause    string   `json:"cause"`
	Steps    []string `json:"steps"`
}

type DeepPropagation struct {
	SeedTreatment     string `json:"seed_treatment"`
	PropagationSource string `json:"propagation_source"`
	SpecialTechnique  string `json:"special_technique"`
	StepByStep        string `json:"step_by_step"`
}

type PropagationGuide struct {
	BestMethod       string   `json:"best_method"`
	PropagationSteps []string `json:"propagation_steps"`
	PruningAdvice    string   `json:"pruning_advice"`
}

// TimelineStep is one entry of action_timeline.  Period and Action are
// required.
type TimelineStep struct {
	Period     *string `json:"period"`
	Action     *string `json:"action"`
	Details    string  `json:"details,omitempty"`
	Formula    string  `json:"formula,omitempty"`
	Benefit    string  `json:"benefit,omitempty"`
	Checkpoint string  `json:"checkpoint,omitempty"`
}

type Resilience struct {
	Level  string `json:"level"`
	Advice string `json:"advice"`
}

type TransplantAdvice struct {
	Needed  bool   `json:"needed"`
	Trigger string `json:"trigger"`
	Method  string `json:"method"`
}

type EnvSummary struct {
	Temp  string `json:"temp"`
	Light string `json:"light"`
}

// ParseAndValidate extracts the JSON object from a provider reply, decodes
// it and checks the required fields.  Every failure wraps
// apperr.ErrSchemaViolation; no partial result is returned.
func ParseAndValidate(raw string) (Result, error) {
	obj := extractObject(raw)
	if obj == "" {
		return Result{}, violation("reply contains no JSON object")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Result{}, violation("field %s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return Result{}, violation("malformed JSON: %v", err)
	}
	if err := plan.validate(); err != nil {
		return Result{}, err
	}
	return Result{Raw: json.RawMessage(obj), Plan: plan}, nil
}

func (p *Plan) validate() error {
	fc := p.FeasibilityCheck
	switch {
	case fc == nil:
		return violation("missing feasibility_check")
	case fc.IsPossible == nil:
		return violation("missing feasibility_check.is_possible")
	case fc.StatusTitle == nil:
		return violation("missing feasibility_check.status_title")
	case fc.Reason == nil:
		return violation("missing feasibility_check.reason")
	}
	if len(p.ActionTimeline) == 0 {
		return violation("missing action_timeline")
	}
	for i, step := range p.ActionTimeline {
		if step.Period == nil {
			return violation("missing action_timeline[%d].period", i)
		}
		if step.Action == nil {
			return violation("missing action_timeline[%d].action", i)
		}
	}
	return nil
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrSchemaViolation, fmt.Sprintf(format, args...))
}

// extractObject strips Markdown code fences and any prose around the
// outermost JSON object.  It returns "" when no object is present.
func extractObject(s string) string {
	cleaned := stripMarkdownCodeFences(s)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return ""
	}
	return cleaned[start : end+1]
}

// stripMarkdownCodeFences removes a ```json / ``` wrapper.  Text without a
// leading fence is returned trimmed.
func stripMarkdownCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		if i := strings.Index(trimmed, "```"); i != -1 {
			// Prose before the fence.
			trimmed = trimmed[i:]
		} else {
			return trimmed
		}
	}
	firstNewline := strings.Index(trimmed, "\n")
	if firstNewline == -1 {
		return strings.Trim(trimmed, "`")
	}
	body := trimmed[firstNewline+1:]
	if lastFence := strings.LastIndex(body, "```"); lastFence != -1 {
		body = body[:lastFence]
	}
	return strings.TrimSpace(body)
}
