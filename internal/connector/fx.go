package connector

import (
	"github.com/staybridge/channelsync/internal/connector/agoda"
	"github.com/staybridge/channelsync/internal/connector/airbnb"
	"github.com/staybridge/channelsync/internal/connector/bookingcom"
	"github.com/staybridge/channelsync/internal/connector/expedia"
	"go.uber.org/fx"
)

var Module = fx.Module("connector",
	fx.Provide(func() *Registry {
		return NewRegistry(
			bookingcom.NewFactory(),
			expedia.NewFactory(),
			airbnb.NewFactory(),
			agoda.NewFactory(),
		)
	}),
	fx.Provide(NewBuilder),
)
