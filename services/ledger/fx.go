package ledger

import "go.uber.org/fx"

var Module = fx.Module("ledger.service",
	fx.Provide(
		NewService,
		func(s *Service) BalanceStore { return s },
	),
)
