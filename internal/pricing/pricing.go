// Package pricing implements the per-(provider, model) cost model:
// per-million-token pricing, 50/50 estimation when a provider doesn't
// report input/output tokens separately, and aggregate observation of
// token counts for reporting.
package pricing

import (
	"math"
	"sync"
)

// tokensPerMillion is the divisor for per-million token pricing.
const tokensPerMillion = 1_000_000.0

// costPrecision bounds cost to nano-currency-unit precision, enough
// to avoid floating point accumulation noise on very cheap requests.
const costPrecision = 9

// defaultInputPerMillion and defaultOutputPerMillion apply when a
// (provider, model) pair has no configured entry; the cost is still
// computed, and Lookup returns known=false so reports can flag it.
const (
	defaultInputPerMillion  = 3.0
	defaultOutputPerMillion = 15.0
)

// PriceSheet holds per-million pricing for one (provider, model) pair.
// All rates are non-negative currency units per million tokens.
type PriceSheet struct {
	Provider              string
	Model                 string
	InputPerMillion       float64
	OutputPerMillion      float64
	CachedInputPerMillion float64
}

// Cost is the result of a cost estimate.
type Cost struct {
	InputCost  float64
	OutputCost float64
	CachedCost float64
	TotalCost  float64
	// Estimated is true when tokens_in/tokens_out were derived by a
	// 50/50 split of a combined total rather than reported directly.
	Estimated bool
}

func roundToPrecision(v float64, precision int) float64 {
	m := math.Pow10(precision)
	return math.Round(v*m) / m
}

// EstimateCost computes (in*p_in + out*p_out + cached*p_cached) / 1e6.
// When tokensIn and tokensOut are both zero but tokensTotal is
// positive, the total is split 50/50 across input and output and the
// result is marked Estimated. The model never rejects a computation
// for missing data; negative token counts are clamped to zero.
func EstimateCost(tokensIn, tokensOut, tokensCached int64, tokensTotal int64, sheet PriceSheet) Cost {
	estimated := false
	if tokensIn <= 0 && tokensOut <= 0 && tokensTotal > 0 {
		half := tokensTotal / 2
		tokensIn = half
		tokensOut = tokensTotal - half
		estimated = true
	}
	if tokensIn < 0 {
		tokensIn = 0
	}
	if tokensOut < 0 {
		tokensOut = 0
	}
	if tokensCached < 0 {
		tokensCached = 0
	}

	inputCost := float64(tokensIn) * sheet.InputPerMillion / tokensPerMillion
	outputCost := float64(tokensOut) * sheet.OutputPerMillion / tokensPerMillion
	cachedCost := float64(tokensCached) * sheet.CachedInputPerMillion / tokensPerMillion

	return Cost{
		InputCost:  roundToPrecision(inputCost, costPrecision),
		OutputCost: roundToPrecision(outputCost, costPrecision),
		CachedCost: roundToPrecision(cachedCost, costPrecision),
		TotalCost:  roundToPrecision(inputCost+outputCost+cachedCost, costPrecision),
		Estimated:  estimated,
	}
}

// Pricer is a thread-safe registry of PriceSheet rows keyed by
// "provider/model", with a built-in estimated fallback for unknown
// pairs.
type Pricer struct {
	mu     sync.RWMutex
	sheets map[string]PriceSheet
}

// NewPricer creates an empty Pricer; callers register sheets with Register.
func NewPricer() *Pricer {
	return &Pricer{sheets: make(map[string]PriceSheet)}
}

func sheetKey(provider, model string) string {
	return provider + "/" + model
}

// Register adds or replaces the price sheet for a (provider, model) pair.
func (p *Pricer) Register(sheet PriceSheet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sheets[sheetKey(sheet.Provider, sheet.Model)] = sheet
}

// Lookup returns the registered sheet for (provider, model), or a
// conservative default sheet carrying the requested Provider/Model and
// known=false when none is registered.
func (p *Pricer) Lookup(provider, model string) (sheet PriceSheet, known bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if s, ok := p.sheets[sheetKey(provider, model)]; ok {
		return s, true
	}
	return PriceSheet{
		Provider:         provider,
		Model:            model,
		InputPerMillion:  defaultInputPerMillion,
		OutputPerMillion: defaultOutputPerMillion,
	}, false
}
