package webhook

import (
	"github.com/teleora/teleora/internal/webhook/dispatcher"
	"github.com/teleora/teleora/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(dispatcher.NewDeliverer),
	fx.Provide(dispatcher.NewWorker),
	fx.Provide(service.NewService),
	fx.Invoke(dispatcher.Run),
)
