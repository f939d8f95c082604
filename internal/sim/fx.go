package sim

import (
	"github.com/teleora/teleora/internal/sim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sim.service",
	fx.Provide(service.NewService),
)
