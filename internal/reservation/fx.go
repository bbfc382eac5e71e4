package reservation

import (
	"github.com/staybridge/channelsync/internal/reservation/repository"
	"github.com/staybridge/channelsync/internal/reservation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reservation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
