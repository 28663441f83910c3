package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ModelPrice is the USD price per 1000 tokens for one model.
type ModelPrice struct {
	Input  float64 `mapstructure:"input" json:"input"`
	Output float64 `mapstructure:"output" json:"output"`
}

// PricingConfig maps model identifiers to prices. Unknown models resolve to
// Default rather than erroring.
type PricingConfig struct {
	Default ModelPrice            `mapstructure:"default"`
	Models  map[string]ModelPrice `mapstructure:"models"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Default: ModelPrice{Input: 0.01, Output: 0.03},
		Models: map[string]ModelPrice{
			"gpt-4":         {Input: 0.03, Output: 0.06},
			"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
			"gpt-4o":        {Input: 0.005, Output: 0.015},
			"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
			"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
		},
	}
}

// Resolve returns the price for a model, falling back to the default entry.
func (c PricingConfig) Resolve(model string) ModelPrice {
	if price, ok := c.Models[strings.TrimSpace(model)]; ok {
		return price
	}
	return c.Default
}

// PricingConfigHolder exposes the current pricing table and reloads it when
// the backing file changes, so price updates do not require a redeploy.
type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/geosignal/config") // Volume-mounted config
	v.AddConfigPath("/etc/geosignal")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("GEOSIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	holder := &PricingConfigHolder{}

	cfg := DefaultPricingConfig()
	if fileFound {
		if err := v.UnmarshalKey("pricing", &cfg); err != nil {
			return nil, err
		}
		if err := validatePricingConfig(cfg); err != nil {
			return nil, err
		}
	}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PricingConfig
			if err := v.UnmarshalKey("pricing", &updated); err != nil {
				log.Printf("[pricing-config] reload failed: %v", err)
				return
			}
			if err := validatePricingConfig(updated); err != nil {
				log.Printf("[pricing-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[pricing-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed pricing table, used in tests.
func NewStaticPricingHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingConfigHolder) Current() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.Default.Input < 0 || cfg.Default.Output < 0 {
		return errors.New("pricing default entry must be non-negative")
	}
	for model, price := range cfg.Models {
		if strings.TrimSpace(model) == "" {
			return errors.New("pricing model identifier must not be empty")
		}
		if price.Input < 0 || price.Output < 0 {
			return errors.New("pricing for " + model + " must be non-negative")
		}
	}
	return nil
}
