package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownAndUnknownModels(t *testing.T) {
	cfg := DefaultPricingConfig()

	gpt4 := cfg.Resolve("gpt-4")
	assert.Equal(t, 0.03, gpt4.Input)
	assert.Equal(t, 0.06, gpt4.Output)

	fallback := cfg.Resolve("some-future-model")
	assert.Equal(t, cfg.Default, fallback)

	trimmed := cfg.Resolve("  gpt-4o  ")
	assert.Equal(t, 0.005, trimmed.Input)
}

func TestValidatePricingConfig(t *testing.T) {
	valid := DefaultPricingConfig()
	assert.NoError(t, validatePricingConfig(valid))

	negative := PricingConfig{Default: ModelPrice{Input: -1}}
	assert.Error(t, validatePricingConfig(negative))

	unnamed := PricingConfig{Models: map[string]ModelPrice{" ": {Input: 0.01}}}
	assert.Error(t, validatePricingConfig(unnamed))
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticPricingHolder(PricingConfig{Default: ModelPrice{Input: 0.02, Output: 0.04}})
	assert.Equal(t, 0.02, holder.Current().Resolve("anything").Input)
}
