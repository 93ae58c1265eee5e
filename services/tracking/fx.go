package tracking

import "go.uber.org/fx"

var Module = fx.Module("tracking.service",
	fx.Provide(
		NewService,
		func(s *Service) Recorder { return s },
	),
)
