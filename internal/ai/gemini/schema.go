package gemini

import "google.golang.org/genai"

func score() *genai.Schema {
	return &genai.Schema{
		Type:    genai.TypeInteger,
		Minimum: genai.Ptr(0.0),
		Maximum: genai.Ptr(100.0),
	}
}

func list() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

// responseSchema mirrors the result schema of the ai package in the form the
// backend accepts for constrained decoding.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"eligibility": {
			Type: genai.TypeString,
			Enum: []string{"eligible", "partially_eligible", "ineligible", "unclear"},
		},
		"dimensions": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"eligibilityMatch":   score(),
				"industryRelevance":  score(),
				"scaleFit":           score(),
				"competitiveness":    score(),
				"strategicAlignment": score(),
			},
			Required:         []string{"eligibilityMatch", "industryRelevance", "scaleFit", "competitiveness", "strategicAlignment"},
			PropertyOrdering: []string{"eligibilityMatch", "industryRelevance", "scaleFit", "competitiveness", "strategicAlignment"},
		},
		"eligibilityDetails": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"met":     list(),
				"unmet":   list(),
				"unclear": list(),
			},
			Required: []string{"met", "unmet", "unclear"},
		},
		"strengths":           list(),
		"weaknesses":          list(),
		"advice":              {Type: genai.TypeString},
		"recommendedStrategy": {Type: genai.TypeString},
		"keyActions":          list(),
	},
	Required: []string{
		"eligibility", "dimensions", "eligibilityDetails", "strengths",
		"weaknesses", "advice", "recommendedStrategy", "keyActions",
	},
	PropertyOrdering: []string{
		"eligibility", "dimensions", "eligibilityDetails", "strengths",
		"weaknesses", "advice", "recommendedStrategy", "keyActions",
	},
}
