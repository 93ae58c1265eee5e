package selector

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/submission"
	"creatorpay-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &campaign.Campaign{}, &submission.Clip{}, &submission.Submission{})
	return &fixture{db: db}
}

func (f *fixture) campaign(t *testing.T, c campaign.Campaign) {
	t.Helper()
	if c.Status == "" {
		c.Status = campaign.StatusActive
	}
	if c.Budget.IsZero() {
		c.Budget = decimal.NewFromInt(1000)
	}
	c.PayoutRate = decimal.NewFromInt(2)
	require.NoError(t, f.db.Create(&c).Error)
}

func (f *fixture) clip(t *testing.T, id, campaignID string, status submission.Status, lastTracked *time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&submission.Clip{
		ID:            id,
		URL:           "https://tiktok.com/" + id,
		Platform:      measure.PlatformTikTok,
		LastTrackedAt: lastTracked,
	}).Error)
	require.NoError(t, f.db.Create(&submission.Submission{
		ID:           "sub-" + id,
		ClipID:       id,
		UserID:       "user-1",
		CampaignID:   campaignID,
		Status:       status,
		InitialViews: 100,
	}).Error)
}

func TestSelectEligibility(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, campaign.Campaign{ID: "active", Name: "active"})
	f.campaign(t, campaign.Campaign{ID: "paused", Name: "paused", Status: campaign.StatusPaused})
	f.campaign(t, campaign.Campaign{ID: "test", Name: "test", IsTest: true})
	f.campaign(t, campaign.Campaign{ID: "deleted", Name: "deleted"})
	require.NoError(t, f.db.Delete(&campaign.Campaign{ID: "deleted"}).Error)

	f.clip(t, "approved", "active", submission.StatusApproved, nil)
	f.clip(t, "pending", "active", submission.StatusPending, nil)
	f.clip(t, "rejected", "active", submission.StatusRejected, nil)
	f.clip(t, "paid", "active", submission.StatusPaid, nil)
	f.clip(t, "on-paused", "paused", submission.StatusApproved, nil)
	f.clip(t, "on-test", "test", submission.StatusApproved, nil)
	f.clip(t, "on-deleted", "deleted", submission.StatusApproved, nil)

	svc := NewService(ServiceParams{DB: f.db})
	items, err := svc.Select(context.Background(), Params{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"approved", "pending"}, ids(items))

	first := items[0]
	require.Equal(t, "active", first.CampaignID)
	require.Equal(t, "user-1", first.UserID)
	require.Equal(t, submission.StatusApproved, first.SubmissionStatus)
	require.EqualValues(t, 100, first.InitialViews)
	require.True(t, first.CampaignBudget.Equal(decimal.NewFromInt(1000)))
	require.True(t, first.PayoutRate.Equal(decimal.NewFromInt(2)))
	require.Equal(t, measure.PlatformTikTok, first.Platform)
	require.Nil(t, first.LastTrackedAt)
}

func TestSelectOrderingAndFairness(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, campaign.Campaign{ID: "cp", Name: "cp"})

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older, newer := base, base.Add(time.Hour)
	f.clip(t, "recent", "cp", submission.StatusApproved, &newer)
	f.clip(t, "stale", "cp", submission.StatusApproved, &older)
	f.clip(t, "fresh-b", "cp", submission.StatusApproved, nil)
	f.clip(t, "fresh-a", "cp", submission.StatusPending, nil)

	svc := NewService(ServiceParams{DB: f.db})

	items, err := svc.Select(context.Background(), Params{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"fresh-a", "fresh-b", "stale", "recent"}, ids(items))

	items, err = svc.Select(context.Background(), Params{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"fresh-a", "fresh-b"}, ids(items))

	items, err = svc.Select(context.Background(), Params{Limit: 10, Exclude: []string{"fresh-a", "stale"}})
	require.NoError(t, err)
	require.Equal(t, []string{"fresh-b", "recent"}, ids(items))
}

func TestSelectDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, campaign.Campaign{ID: "cp", Name: "cp"})
	f.clip(t, "clip", "cp", submission.StatusApproved, nil)

	svc := NewService(ServiceParams{DB: f.db})
	_, err := svc.Select(context.Background(), Params{})
	require.NoError(t, err)

	var clip submission.Clip
	require.NoError(t, f.db.First(&clip, "id = ?", "clip").Error)
	require.Nil(t, clip.LastTrackedAt)
}
