package measure

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindTimeout             Kind = "timeout"
	KindRateLimited         Kind = "rate_limited"
	KindMalformed           Kind = "malformed"
	KindNotFound            Kind = "not_found"
	KindUnsupportedPlatform Kind = "unsupported_platform"
	KindUpstream            Kind = "upstream"
	KindCanceled            Kind = "canceled"
)

// ErrNoSource means no measurement source is configured at all. Callers treat
// it as a startup failure rather than a per-clip skip.
var ErrNoSource = errors.New("measure: no measurement source configured")

type Error struct {
	Kind     Kind
	Platform Platform
	URL      string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("measure %s %s: %s", e.Platform, e.URL, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that did not come from a Source are reported
// as upstream; a cancelled or expired context is reported as such.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUpstream
}
