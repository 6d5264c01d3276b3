package extraction

import "github.com/tucentropdf/engine-v2/internal/llm/schema"

// confidenceWeight maps each confidence level to the weight used in the
// majority-vote average, spec §9 open question resolution: rather than
// a simple count of high-confidence fields, every reasoned field
// contributes a weighted vote and the job's overall confidence is the
// mean of those votes.
var confidenceWeight = map[string]float64{
	schema.ConfidenceHigh:   1.0,
	schema.ConfidenceMedium: 0.6,
	schema.ConfidenceLow:    0.2,
}

// ComputeConfidence averages the per-field confidence weights across
// every reasoned field present in data, skipping metadata keys
// (reasoning, valid_input) which carry no confidence of their own.
// Returns 0 when data contains no reasoned fields.
func ComputeConfidence(data map[string]interface{}) float64 {
	var sum float64
	var count int

	for key, raw := range data {
		if key == "reasoning" || key == "valid_input" {
			continue
		}
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		confidence, ok := obj["confidence"].(string)
		if !ok {
			continue
		}
		weight, ok := confidenceWeight[confidence]
		if !ok {
			continue
		}
		sum += weight
		count++
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
