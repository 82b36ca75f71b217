package aggregate

import (
	"github.com/smallbiznis/certify/internal/aggregate/repository"
	"github.com/smallbiznis/certify/internal/aggregate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aggregate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
