package measure

import "context"

//go:generate mockgen -source=source.go -destination=mock/source_mock.go -package=mock

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformX         Platform = "x"
)

// Observation is a point-in-time read of a clip's public counters.
type Observation struct {
	Views  uint64 `json:"views"`
	Likes  uint64 `json:"likes"`
	Shares uint64 `json:"shares"`
}

// Source fetches counters for one clip. Implementations do not retry; a
// failed call returns an *Error and no partial Observation.
type Source interface {
	Observe(ctx context.Context, url string, platform Platform) (Observation, error)
}

type SourceFunc func(ctx context.Context, url string, platform Platform) (Observation, error)

func (f SourceFunc) Observe(ctx context.Context, url string, platform Platform) (Observation, error) {
	return f(ctx, url, platform)
}
