package selector

import "go.uber.org/fx"

var Module = fx.Module("selector.service",
	fx.Provide(
		NewService,
		func(s *Service) Selector { return s },
	),
)
