package extract

// jobSchema is the fixed JSON schema the extraction service is asked to fill
// for every job posting page.
var jobSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":          map[string]any{"type": "string", "description": "Job title"},
		"company":        map[string]any{"type": "string", "description": "Hiring company name"},
		"location":       map[string]any{"type": "string", "description": "Job location or Remote"},
		"description":    map[string]any{"type": "string", "description": "Summary of responsibilities and requirements"},
		"employmentType": map[string]any{"type": "string", "description": "full-time, part-time, contract, internship"},
		"salary": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"min":      map[string]any{"type": "number"},
				"max":      map[string]any{"type": "number"},
				"currency": map[string]any{"type": "string"},
				"period":   map[string]any{"type": "string", "description": "yearly, monthly, hourly"},
			},
		},
		"requirements": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"benefits":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"postedDate":   map[string]any{"type": "string"},
		"applicationDeadline": map[string]any{"type": "string"},
		"source": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":  map[string]any{"type": "string"},
				"site": map[string]any{"type": "string"},
			},
		},
	},
	"required": []string{"title", "company", "location", "description"},
}
