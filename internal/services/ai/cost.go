package ai

// modelRate is USD per million tokens.
type modelRate struct {
	input  float64
	output float64
}

var modelRates = map[string]modelRate{
	"claude-haiku-3-5":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5": {input: 3.00, output: 15.00},
	"gpt-4o-mini":       {input: 0.15, output: 0.60},
	"gpt-4o":            {input: 2.50, output: 10.00},
}

// costFor prices a call. Unknown models, including anything served by the
// embedded endpoint, cost nothing.
func costFor(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := modelRates[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*rate.input/1e6 + float64(outputTokens)*rate.output/1e6
}
