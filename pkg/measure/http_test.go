package measure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var me *Error
	require.True(t, errors.As(err, &me), "expected *measure.Error, got %v", err)
	require.Equal(t, kind, me.Kind)
	require.Equal(t, kind, KindOf(err))
}

func TestHTTPSourceObserve(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		reqs <- r.Clone(context.Background())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"views": 15000, "likes": 120, "shares": 7}`))
	})

	src, err := NewHTTPSource(srv.URL+"/", "secret", time.Second)
	require.NoError(t, err)

	obs, err := src.Observe(context.Background(), "https://tiktok.com/@a/video/1", PlatformTikTok)
	require.NoError(t, err)
	require.Equal(t, Observation{Views: 15000, Likes: 120, Shares: 7}, obs)

	got := <-reqs
	require.Equal(t, "/v1/metrics", got.URL.Path)
	require.Equal(t, "https://tiktok.com/@a/video/1", got.URL.Query().Get("url"))
	require.Equal(t, "tiktok", got.URL.Query().Get("platform"))
	require.Equal(t, "secret", got.Header.Get("X-Service-Token"))
}

func TestHTTPSourceStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   Kind
	}{
		{name: "removed clip", status: http.StatusNotFound, kind: KindNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, kind: KindRateLimited},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, kind: KindTimeout},
		{name: "unsupported", status: http.StatusUnprocessableEntity, kind: KindUnsupportedPlatform},
		{name: "upstream failure", status: http.StatusBadGateway, kind: KindUpstream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})

			src, err := NewHTTPSource(srv.URL, "", time.Second)
			require.NoError(t, err)

			obs, err := src.Observe(context.Background(), "https://x.com/a/status/1", PlatformX)
			requireKind(t, err, tc.kind)
			require.Zero(t, obs)

			var me *Error
			require.ErrorAs(t, err, &me)
			require.Equal(t, tc.status, me.Status)
		})
	}
}

func TestHTTPSourceMalformedBody(t *testing.T) {
	cases := map[string]string{
		"not json":       `<html>blocked</html>`,
		"missing views":  `{"likes": 3, "shares": 1}`,
		"missing likes":  `{"views": 10, "shares": 1}`,
		"missing shares": `{"views": 10, "likes": 3}`,
		"negative":       `{"views": -5, "likes": 0, "shares": 0}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			src, err := NewHTTPSource(srv.URL, "", time.Second)
			require.NoError(t, err)

			_, err = src.Observe(context.Background(), "https://youtube.com/shorts/1", PlatformYouTube)
			requireKind(t, err, KindMalformed)
		})
	}
}

func TestHTTPSourceTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	src, err := NewHTTPSource(srv.URL, "", 50*time.Millisecond)
	require.NoError(t, err)

	_, err = src.Observe(context.Background(), "https://instagram.com/reel/1", PlatformInstagram)
	requireKind(t, err, KindTimeout)
}

func TestHTTPSourceCanceledByCaller(t *testing.T) {
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	src, err := NewHTTPSource(srv.URL, "", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Observe(ctx, "https://instagram.com/reel/1", PlatformInstagram)
	requireKind(t, err, KindCanceled)
}

func TestNewHTTPSourceValidation(t *testing.T) {
	_, err := NewHTTPSource("", "token", time.Second)
	require.ErrorIs(t, err, ErrNoSource)

	_, err = NewHTTPSource("not a url", "token", time.Second)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoSource)
}
