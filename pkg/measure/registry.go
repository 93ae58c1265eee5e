package measure

import (
	"context"
	"fmt"
	"strings"

	"creatorpay-engine/pkg/config"
)

// Registry dispatches to a per-platform Source, falling back to a default
// when one is set.
type Registry struct {
	sources  map[Platform]Source
	fallback Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[Platform]Source)}
}

func (r *Registry) Register(platform Platform, src Source) *Registry {
	r.sources[Platform(strings.ToLower(string(platform)))] = src
	return r
}

func (r *Registry) SetDefault(src Source) *Registry {
	r.fallback = src
	return r
}

// Len counts configured sources, the default included.
func (r *Registry) Len() int {
	n := len(r.sources)
	if r.fallback != nil {
		n++
	}
	return n
}

func (r *Registry) Observe(ctx context.Context, url string, platform Platform) (Observation, error) {
	src, ok := r.sources[Platform(strings.ToLower(string(platform)))]
	if !ok {
		src = r.fallback
	}
	if src == nil {
		return Observation{}, &Error{Kind: KindUnsupportedPlatform, Platform: platform, URL: url}
	}
	return src.Observe(ctx, url, platform)
}

// NewRegistryFromConfig builds HTTP sources from SCRAPER. It returns
// ErrNoSource when neither a default nor a per-platform gateway is set.
func NewRegistryFromConfig(cfg config.Scraper) (*Registry, error) {
	r := NewRegistry()

	if cfg.BaseURL != "" {
		src, err := NewHTTPSource(cfg.BaseURL, cfg.Token, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("default source: %w", err)
		}
		r.SetDefault(src)
	}

	for platform, baseURL := range cfg.Platforms {
		src, err := NewHTTPSource(baseURL, cfg.Token, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s source: %w", platform, err)
		}
		r.Register(Platform(platform), src)
	}

	if r.Len() == 0 {
		return nil, ErrNoSource
	}
	return r, nil
}
