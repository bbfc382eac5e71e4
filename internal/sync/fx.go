package sync

import (
	"github.com/staybridge/channelsync/internal/sync/repository"
	"github.com/staybridge/channelsync/internal/sync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sync.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
