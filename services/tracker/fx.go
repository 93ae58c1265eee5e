package tracker

import (
	"creatorpay-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("tracker.service",
	fx.Provide(
		NewDriver,
		NewService,
		func(s *Service) Runner { return s },
	),
)

// Worker consumes tracking:run tasks.
var Worker = fx.Module("tracker.worker",
	fx.Provide(NewHandler),
	fx.Invoke(func(mux *asynq.ServeMux, h *Handler) {
		mux.HandleFunc(taskname.TrackingRun, h.HandleRunTask)
	}),
)

// Schedule periodically enqueues tracking runs.
var Schedule = fx.Module("tracker.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)
