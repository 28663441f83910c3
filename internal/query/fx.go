package query

import (
	"github.com/terralens/geosignal/internal/query/repository"
	"github.com/terralens/geosignal/internal/query/service"
	"go.uber.org/fx"
)

var Module = fx.Module("query.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
