package parity

import "go.uber.org/fx"

var Module = fx.Module("parity",
	fx.Provide(ProvideRepository),
	fx.Provide(NewRateCache),
	fx.Provide(NewService),
)
