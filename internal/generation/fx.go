package generation

import (
	"time"

	"github.com/terralens/geosignal/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.generation",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.GenerationEndpoint == "" {
		return &NoOpProvider{}
	}
	return NewHTTP(cfg.GenerationEndpoint, time.Duration(cfg.GenerationTimeoutMS)*time.Millisecond)
}
