package anomalyset

import (
	"github.com/terralens/geosignal/internal/anomalyset/repository"
	"github.com/terralens/geosignal/internal/anomalyset/service"
	"go.uber.org/fx"
)

var Module = fx.Module("anomalyset.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
