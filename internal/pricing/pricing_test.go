package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_ExactTokens(t *testing.T) {
	sheet := PriceSheet{InputPerMillion: 3.0, OutputPerMillion: 15.0, CachedInputPerMillion: 0.3}
	cost := EstimateCost(1_000_000, 1_000_000, 1_000_000, 0, sheet)

	assert.False(t, cost.Estimated)
	assert.Equal(t, 3.0, cost.InputCost)
	assert.Equal(t, 15.0, cost.OutputCost)
	assert.Equal(t, 0.3, cost.CachedCost)
	assert.Equal(t, 18.3, cost.TotalCost)
}

func TestEstimateCost_SplitsTotalWhenInputOutputMissing(t *testing.T) {
	sheet := PriceSheet{InputPerMillion: 2.0, OutputPerMillion: 2.0}
	cost := EstimateCost(0, 0, 0, 1_000_000, sheet)

	assert.True(t, cost.Estimated)
	assert.Equal(t, 2.0, cost.TotalCost)
}

func TestEstimateCost_OddTotalGivesMoreToOutput(t *testing.T) {
	sheet := PriceSheet{InputPerMillion: 1_000_000, OutputPerMillion: 1_000_000}
	cost := EstimateCost(0, 0, 0, 3, sheet)

	assert.True(t, cost.Estimated)
	// half=1, remainder=2: input gets 1 token's cost, output gets 2.
	assert.Equal(t, 1.0, cost.InputCost)
	assert.Equal(t, 2.0, cost.OutputCost)
}

func TestEstimateCost_ClampsNegativeTokens(t *testing.T) {
	sheet := PriceSheet{InputPerMillion: 1_000_000, OutputPerMillion: 1_000_000, CachedInputPerMillion: 1_000_000}
	cost := EstimateCost(-5, -5, -5, 0, sheet)

	assert.Equal(t, 0.0, cost.InputCost)
	assert.Equal(t, 0.0, cost.OutputCost)
	assert.Equal(t, 0.0, cost.CachedCost)
	assert.False(t, cost.Estimated)
}

func TestEstimateCost_NonPositiveInputOutputWithNoTotalIsNotEstimated(t *testing.T) {
	sheet := PriceSheet{InputPerMillion: 1.0, OutputPerMillion: 1.0}
	cost := EstimateCost(0, 0, 0, 0, sheet)

	assert.False(t, cost.Estimated)
	assert.Equal(t, 0.0, cost.TotalCost)
}

func TestPricer_RegisterThenLookup(t *testing.T) {
	p := NewPricer()
	p.Register(PriceSheet{Provider: "openai", Model: "gpt-test", InputPerMillion: 5, OutputPerMillion: 10})

	sheet, known := p.Lookup("openai", "gpt-test")
	assert.True(t, known)
	assert.Equal(t, 5.0, sheet.InputPerMillion)
	assert.Equal(t, 10.0, sheet.OutputPerMillion)
}

func TestPricer_LookupUnknownFallsBackToDefaults(t *testing.T) {
	p := NewPricer()

	sheet, known := p.Lookup("anthropic", "claude-unregistered")
	assert.False(t, known)
	assert.Equal(t, defaultInputPerMillion, sheet.InputPerMillion)
	assert.Equal(t, defaultOutputPerMillion, sheet.OutputPerMillion)
	assert.Equal(t, "anthropic", sheet.Provider)
	assert.Equal(t, "claude-unregistered", sheet.Model)
}

func TestPricer_RegisterReplacesExistingSheet(t *testing.T) {
	p := NewPricer()
	p.Register(PriceSheet{Provider: "openai", Model: "gpt-test", InputPerMillion: 1})
	p.Register(PriceSheet{Provider: "openai", Model: "gpt-test", InputPerMillion: 9})

	sheet, known := p.Lookup("openai", "gpt-test")
	assert.True(t, known)
	assert.Equal(t, 9.0, sheet.InputPerMillion)
}
