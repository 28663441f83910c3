package usage

import (
	"github.com/terralens/geosignal/internal/usage/repository"
	"github.com/terralens/geosignal/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
