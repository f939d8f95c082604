package apikey

import (
	"github.com/teleora/teleora/internal/apikey/service"
	"github.com/teleora/teleora/internal/cache"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(cache.NewAuthResolverCache),
	fx.Provide(service.NewService),
)
