package measure

import (
	"creatorpay-engine/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("measure",
	fx.Provide(ProvideSource),
)

func ProvideSource(cfg *config.Config) (Source, error) {
	r, err := NewRegistryFromConfig(cfg.Scraper)
	if err != nil {
		zap.L().Error("[Measure] no usable measurement source", zap.Error(err))
		return nil, err
	}

	platforms := make([]string, 0, len(cfg.Scraper.Platforms))
	for p := range cfg.Scraper.Platforms {
		platforms = append(platforms, p)
	}
	zap.L().Info("[Measure] measurement sources configured",
		zap.Bool("default", cfg.Scraper.BaseURL != ""),
		zap.Strings("platforms", platforms),
		zap.Duration("timeout", cfg.Scraper.Timeout),
	)
	return r, nil
}
