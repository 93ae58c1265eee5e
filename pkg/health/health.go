package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"creatorpay-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth, NewRouter, NewServer),
	fx.Invoke(Run),
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	probeTimeout = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

type probe struct {
	name  string
	check func(ctx context.Context) error
}

func (h *health) probes() []probe {
	var probes []probe
	if h.db != nil {
		probes = append(probes, probe{name: "database:" + h.db.Name(), check: func(ctx context.Context) error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if h.redis != nil {
		probes = append(probes, probe{name: "redis", check: func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		}})
	}
	return probes
}

// Readiness pings every dependency concurrently. A failing dependency marks
// the response unhealthy but does not cut the other probes short.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	probes := h.probes()
	deps := make([]Dependency, len(probes))

	var mu sync.Mutex
	healthy := true

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			dep := Dependency{Name: p.name, Status: StatusHealthy, Message: "OK"}
			if err := p.check(ctx); err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()

				mu.Lock()
				healthy = false
				mu.Unlock()
			}
			deps[i] = dep
			return nil
		})
	}
	_ = g.Wait()

	if !healthy {
		be := errutil.Unavailable("dependencies not ready", nil).(errutil.BaseError)
		c.JSON(be.Code.HTTPStatus(), &Health{
			Status:  StatusUnhealthy,
			Message: be.Message,
			Deps:    deps,
		})
		return
	}

	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
		Deps:    deps,
	})
}
