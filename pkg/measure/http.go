package measure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"creatorpay-engine/pkg/errutil"
)

const (
	metricsPath    = "/v1/metrics"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 1024
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource reads counters from the scraper gateway:
//
//	GET {base}/v1/metrics?url=...&platform=...
//	X-Service-Token: {token}
//
// and expects {"views": n, "likes": n, "shares": n}. A body missing any of
// the three counts is malformed.
type HTTPSource struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	client  HTTPClient
}

type HTTPOption func(*HTTPSource)

func WithHTTPClient(c HTTPClient) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

func NewHTTPSource(baseURL, token string, timeout time.Duration, opts ...HTTPOption) (*HTTPSource, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoSource
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errutil.ValidationFailed("invalid scraper base url", err,
			errutil.WithDetails(errutil.Detail{Field: "SCRAPER.BASE_URL", Message: baseURL}))
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &HTTPSource{
		baseURL: u,
		token:   token,
		timeout: timeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type metricsResponse struct {
	Views  *uint64 `json:"views"`
	Likes  *uint64 `json:"likes"`
	Shares *uint64 `json:"shares"`
}

func (s *HTTPSource) Observe(ctx context.Context, clipURL string, platform Platform) (Observation, error) {
	fail := func(kind Kind, status int, err error) (Observation, error) {
		return Observation{}, &Error{Kind: kind, Platform: platform, URL: clipURL, Status: status, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u := s.baseURL.JoinPath(metricsPath)
	q := u.Query()
	q.Set("url", clipURL)
	q.Set("platform", string(platform))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail(KindMalformed, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("X-Service-Token", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(transportKind(ctx, err), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(statusKind(resp.StatusCode), resp.StatusCode, fmt.Errorf("gateway: %s", strings.TrimSpace(string(body))))
	}

	var payload metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return fail(transportKind(ctx, err), resp.StatusCode, err)
		}
		return fail(KindMalformed, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	switch {
	case payload.Views == nil:
		return fail(KindMalformed, resp.StatusCode, errors.New("response has no views"))
	case payload.Likes == nil:
		return fail(KindMalformed, resp.StatusCode, errors.New("response has no likes"))
	case payload.Shares == nil:
		return fail(KindMalformed, resp.StatusCode, errors.New("response has no shares"))
	}

	return Observation{Views: *payload.Views, Likes: *payload.Likes, Shares: *payload.Shares}, nil
}

func statusKind(status int) Kind {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return KindUnsupportedPlatform
	default:
		return KindUpstream
	}
}

func transportKind(ctx context.Context, err error) Kind {
	if errors.Is(ctx.Err(), context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUpstream
}
