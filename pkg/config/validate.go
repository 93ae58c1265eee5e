package config

import (
	"strings"

	"creatorpay-engine/pkg/errutil"
)

func (c *Config) Validate() error {
	var details []errutil.Detail
	fail := func(field, msg string) {
		details = append(details, errutil.Detail{Field: field, Message: msg})
	}

	switch strings.ToLower(c.Database.Type) {
	case "", "postgres", "postgresql", "mysql", "sqlite":
	default:
		fail("DATABASE.TYPE", "must be one of postgres, mysql, sqlite")
	}

	if c.NodeID < 0 || c.NodeID > 1023 {
		fail("NODE_ID", "must be between 0 and 1023")
	}

	t := c.Tracking
	if t.MaxDuration <= 0 {
		fail("TRACKING.MAX_DURATION", "must be positive")
	}
	if t.MaxClips <= 0 {
		fail("TRACKING.MAX_CLIPS", "must be positive")
	}
	if t.DelayBetween < 0 {
		fail("TRACKING.DELAY_BETWEEN", "must not be negative")
	}
	if t.BatchSize <= 0 {
		fail("TRACKING.BATCH_SIZE", "must be positive")
	}
	if t.ClipShareCap <= 0 || t.ClipShareCap > 1 {
		fail("TRACKING.CLIP_SHARE_CAP", "must be in (0, 1]")
	}

	if c.Scraper.Timeout < 0 {
		fail("SCRAPER.TIMEOUT", "must not be negative")
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid configuration", nil, errutil.WithDetails(details...))
	}
	return nil
}
