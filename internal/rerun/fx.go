package rerun

import (
	"github.com/terralens/geosignal/internal/rerun/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rerun.service",
	fx.Provide(service.NewLocker),
	fx.Provide(service.New),
)
