package estimate

import "strings"

// Delimiter separates the three fields the model is instructed to emit:
// salary range, confidence level, reasoning.
const Delimiter = ";;"

// Estimate is one parse of the accumulated completion text. A field stays
// empty until its segment has been observed in the buffer.
type Estimate struct {
	SalaryRange     string `json:"salaryRange,omitempty"`
	ConfidenceLevel string `json:"confidenceLevel,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`
}

// Parse splits buffer on the field delimiter into at most three trimmed
// segments. The split is bounded so reasoning text containing ";;" stays
// intact. Parsing is a pure function of the buffer contents: re-running it on
// a longer buffer never un-sets a field produced by a prefix, it can only
// extend the trailing segment.
func Parse(buffer string) Estimate {
	var e Estimate
	if strings.TrimSpace(buffer) == "" {
		return e
	}

	parts := strings.SplitN(buffer, Delimiter, 3)
	e.SalaryRange = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		e.ConfidenceLevel = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		e.Reasoning = strings.TrimSpace(parts[2])
	}
	return e
}

// Complete reports whether all three fields have been resolved.
func (e Estimate) Complete() bool {
	return e.SalaryRange != "" && e.ConfidenceLevel != "" && e.Reasoning != ""
}
