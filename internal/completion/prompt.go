package completion

import "encoding/json"

// SystemPrompt constrains the model to the delimited three-field payload the
// downstream parser understands.
const SystemPrompt = `You are a salary estimation expert. Given structured data about a job posting, estimate a realistic salary range for the position.

Respond with exactly three fields separated by " ;; " (space, semicolon, semicolon, space), in this order:
1. The estimated salary range, for example "$100,000 - $130,000" or "100k-120k"
2. Your confidence level: low, medium, or high
3. A short explanation of your reasoning

Do not add headings, labels, markdown, or any text outside the three fields.`

// EstimatePrompt embeds the serialized job record in the user prompt. The
// record is passed through whole; the model sees exactly what the extraction
// service produced.
func EstimatePrompt(job json.RawMessage) string {
	return "Estimate the salary for this job posting:\n\n" + string(job)
}
