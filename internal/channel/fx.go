package channel

import (
	"github.com/staybridge/channelsync/internal/channel/repository"
	"github.com/staybridge/channelsync/internal/channel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("channel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
