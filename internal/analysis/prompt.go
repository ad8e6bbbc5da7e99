package analysis

import "text/template"

// promptTmpl is the instruction sent to the provider.  The JSON block at the
// end is the contract ParseAndValidate enforces.
var promptTmpl = template.Must(template.New("prompt").Parse(`Role: Grandmaster Agricultural Scientist & Soil Expert (Yanapanya Method).
Task: Create a "Master-Class Operational Manual" for: "{{.Plant}}" in "{{.Region}}, {{.Country}}" ({{.Environment}}, {{.System}}).
Output Language: {{.Language}} ONLY.

**INSTRUCTION FOR EXTREME DETAIL (Must mimic a textbook/manual):**
1. **LENGTH:** Do NOT summarize. Write full paragraphs where necessary.
2. **RECIPES:** Provide exact ingredients, weights (grams/kg), volumes (liters), and fermentation times (days).
3. **STEPS:** Use numbered lists (1., 2., 3.) for every procedure.
4. **DISEASE:** If an image is provided, diagnose it. If not, predict the most likely disease. **PROVIDE 5-STEP TREATMENT PLAN.**

**MANDATORY SECTIONS:**
- **Soil Adjustment:** How to fix pH? How much lime/sulfur per sq.m.? How to fix clay/sand?
- **Organic Wisdom:** Recipe for FPJ, IMO, or Compost. Ratio (e.g. 1:3:10).
- **Disease Treatment:** 1. Sanitation (How?) 2. Environment (Airflow/Water) 3. Biological Control (Trichoderma/Bacillus?) 4. Organic Chemical (Copper/Neem?) 5. Future Prevention.
- **Deep Propagation:** Seed soaking temp/time. Cutting angle. Rooting hormone usage.
- **Timeline:** Weekly breakdown with "Observation Points".

Reply with a single JSON object and nothing else.

JSON Schema (Strict):
{
  "feasibility_check": { "is_possible": boolean, "status_title": "string", "reason": "string (Long detailed explanation)" },
  "vital_stats": { "ideal_temp": "string", "ideal_humidity": "string", "ideal_ph": "string", "soil_type": "string", "sun_requirement": "string" },
  "soil_adjustment_detailed": "string (VERY DETAILED: How to test and fix soil problems step-by-step)",
  "soil_composition": {
    "primary_mix": "string (Exact Ratio e.g. Soil 2 : Leaf Compost 1 : Sand 1)",
    "amendments": "string (List specific items like Dolomite, Perlite)",
    "layering": "string"
  },
  "fertilizer_guide": {
    "veg_stage_npk": "string",
    "flower_stage_npk": "string",
    "organic_recipe": "string (FULL RECIPE: Ingredients, Ratios, Fermentation Time, Usage)",
    "application_frequency": "string"
  },
  "organic_wisdom": {
    "soil_prep": "string (Traditional Double-Digging or Solarization method details)",
    "fertilizer_recipe": "string (Alternative bio-fertilizer recipe with exact steps)",
    "pest_control_recipe": "string (Herbal spray recipe: Ingredients like Galangal, Neem, Molasses + Ratios)",
    "microorganism_technique": "string (How to make IMO or PSB step-by-step)"
  },
  "disease_treatment": {
    "detected": boolean,
    "name": "string (Scientific Name if possible)",
    "cause": "string",
    "steps": ["string (Step 1: Sanitation...)", "string (Step 2: Environment...)", "string (Step 3: Biological...)", "string (Step 4: Chemical...)", "string (Step 5: Prevention...)"]
  },
  "deep_propagation": {
    "seed_treatment": "string (Detailed: Water temp, soaking hours, scarification)",
    "propagation_source": "string",
    "special_technique": "string (Detailed technique)",
    "step_by_step": "string (1. Prepare... 2. Cut... 3. Apply... 4. Wait...)"
  },
  "propagation_guide": { "best_method": "string", "propagation_steps": ["string"], "pruning_advice": "string" },
  "action_timeline": [
    { "period": "string", "action": "string", "details": "string", "formula": "string", "benefit": "string", "checkpoint": "string" }
  ],
  "resilience_profile": { "drought": {"level":"","advice":""}, "flood": {"level":"","advice":""}, "sun": {"level":"","advice":""} },
  "transplant_advice": { "needed": boolean, "trigger": "string", "method": "string" },
  "env_summary": { "temp": "string", "light": "string" },
  "soil_summary": "string"
}
`))
