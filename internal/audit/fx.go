package audit

import (
	"github.com/teleora/teleora/internal/audit/repository"
	"github.com/teleora/teleora/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
