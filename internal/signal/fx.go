package signal

import (
	"github.com/terralens/geosignal/internal/signal/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("signal",
	fx.Provide(repository.Provide),
)
