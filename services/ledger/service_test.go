package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorpay-engine/pkg/db/option"
	"creatorpay-engine/pkg/errutil"
	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/pkg/repository"
	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/submission"
	"creatorpay-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn func(tx *gorm.DB) repository.Repository[T]
	findFn    func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn  func(ctx context.Context, resource *T) error
	updateFn  func(ctx context.Context, resourceID string, resource any) error
	countFn   func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func constant(amount string) PlanFunc {
	return func(Snapshot) (decimal.Decimal, error) {
		return dec(amount), nil
	}
}

type state struct {
	spent         decimal.Decimal
	clipEarnings  decimal.Decimal
	totalEarnings decimal.Decimal
	totalViews    int64
	entries       int64
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Campaign{}, &submission.Clip{}, &submission.Submission{}, &Balance{}, &EarningEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&campaign.Campaign{
		ID: "cp-1", Name: "launch", Budget: dec("1000"), PayoutRate: dec("2"), Status: campaign.StatusActive,
	}).Error)
	require.NoError(t, db.Create(&submission.Clip{ID: "clip-1", URL: "https://tiktok.com/1", Platform: measure.PlatformTikTok}).Error)
	require.NoError(t, db.Create(&submission.Submission{
		ID: "sub-1", ClipID: "clip-1", UserID: "user-1", CampaignID: "cp-1", Status: submission.StatusApproved,
	}).Error)
	require.NoError(t, db.Create(&Balance{UserID: "user-1"}).Error)

	return NewService(ServiceParams{DB: db, Node: node})
}

func request(ref string) CreditRequest {
	return CreditRequest{ReferenceID: ref, CampaignID: "cp-1", ClipID: "clip-1", UserID: "user-1", ViewsGained: 500}
}

func snapshot(t *testing.T, s *Service) state {
	t.Helper()

	var cp campaign.Campaign
	require.NoError(t, s.db.Unscoped().First(&cp, "id = ?", "cp-1").Error)
	var clip submission.Clip
	require.NoError(t, s.db.First(&clip, "id = ?", "clip-1").Error)
	var bal Balance
	require.NoError(t, s.db.First(&bal, "user_id = ?", "user-1").Error)
	var entries int64
	require.NoError(t, s.db.Model(&EarningEntry{}).Count(&entries).Error)

	return state{
		spent:         cp.Spent,
		clipEarnings:  clip.Earnings,
		totalEarnings: bal.TotalEarnings,
		totalViews:    bal.TotalViews,
		entries:       entries,
	}
}

func TestCreditAppliesAllIncrements(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Credit(context.Background(), request("sample-1"), constant("28"))
	require.NoError(t, err)
	require.True(t, res.Applied())
	requireDecimal(t, "28", res.Amount)
	requireDecimal(t, "28", res.CampaignSpent)
	requireDecimal(t, "28", res.ClipEarnings)
	require.EqualValues(t, 1, res.Entry.Sequence)
	require.Empty(t, res.Entry.PreviousHash)

	st := snapshot(t, svc)
	requireDecimal(t, "28", st.spent)
	requireDecimal(t, "28", st.clipEarnings)
	requireDecimal(t, "28", st.totalEarnings)
	require.EqualValues(t, 500, st.totalViews)
	require.EqualValues(t, 1, st.entries)
}

func TestCreditRoundsToSixPlaces(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Credit(context.Background(), request("sample-1"), constant("0.1234567"))
	require.NoError(t, err)
	requireDecimal(t, "0.123457", res.Amount)
}

func TestCreditZeroAmountWritesNothing(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Credit(context.Background(), request("sample-1"), constant("0"))
	require.NoError(t, err)
	require.False(t, res.Applied())
	require.True(t, res.Amount.IsZero())

	st := snapshot(t, svc)
	require.True(t, st.spent.IsZero())
	require.True(t, st.totalEarnings.IsZero())
	require.Zero(t, st.totalViews)
	require.Zero(t, st.entries)
}

func TestCreditSameReferenceTwice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, request("sample-1"), constant("10"))
	require.NoError(t, err)

	_, err = svc.Credit(ctx, request("sample-1"), constant("10"))
	require.ErrorIs(t, err, ErrDuplicateReference)

	st := snapshot(t, svc)
	requireDecimal(t, "10", st.spent)
	requireDecimal(t, "10", st.totalEarnings)
	require.EqualValues(t, 1, st.entries)
}

func TestCreditPlanSeesLockedState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, request("sample-1"), constant("40"))
	require.NoError(t, err)

	var seen Snapshot
	_, err = svc.Credit(ctx, request("sample-2"), func(s Snapshot) (decimal.Decimal, error) {
		seen = s
		return decimal.Zero, nil
	})
	require.NoError(t, err)
	requireDecimal(t, "40", seen.Campaign.Spent)
	requireDecimal(t, "40", seen.ClipEarnings)
	requireDecimal(t, "40", seen.Balance.TotalEarnings)
	requireDecimal(t, "2", seen.Campaign.PayoutRate)
	require.Equal(t, submission.StatusApproved, seen.Submission.Status)
	require.Equal(t, "user-1", seen.Submission.UserID)
}

func TestCreditRejectsMissingIdentifiers(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(r *CreditRequest)
		field string
	}{
		{name: "reference", edit: func(r *CreditRequest) { r.ReferenceID = "" }, field: "reference_id"},
		{name: "campaign", edit: func(r *CreditRequest) { r.CampaignID = "" }, field: "campaign_id"},
		{name: "clip", edit: func(r *CreditRequest) { r.ClipID = "" }, field: "clip_id"},
		{name: "user", edit: func(r *CreditRequest) { r.UserID = "" }, field: "user_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t)
			planned := false

			req := request("sample-1")
			tc.edit(&req)
			_, err := svc.Credit(context.Background(), req, func(Snapshot) (decimal.Decimal, error) {
				planned = true
				return dec("10"), nil
			})
			require.ErrorIs(t, err, ErrInvalidCredit)
			require.False(t, planned)

			var be errutil.BaseError
			require.ErrorAs(t, err, &be)
			require.Len(t, be.Details, 1)
			require.Equal(t, tc.field, be.Details[0].Field)

			st := snapshot(t, svc)
			require.True(t, st.spent.IsZero())
			require.True(t, st.totalEarnings.IsZero())
			require.Zero(t, st.entries)
		})
	}
}

func TestCreditUnknownUserDoesNotMatchOtherBalances(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.db.Model(&submission.Submission{}).Where("id = ?", "sub-1").Update("user_id", "user-9").Error)

	req := request("sample-1")
	req.UserID = "user-9"
	_, err := svc.Credit(context.Background(), req, constant("10"))
	require.ErrorIs(t, err, ErrBalanceNotFound)

	st := snapshot(t, svc)
	require.True(t, st.totalEarnings.IsZero())
	require.Zero(t, st.entries)
}

func TestCreditRaceConditionsLeaveNoPartialWrites(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, s *Service)
		err   error
	}{
		{
			name: "campaign deleted",
			setup: func(t *testing.T, s *Service) {
				require.NoError(t, s.db.Delete(&campaign.Campaign{ID: "cp-1"}).Error)
			},
			err: ErrCampaignNotFound,
		},
		{
			name: "campaign paused",
			setup: func(t *testing.T, s *Service) {
				require.NoError(t, s.db.Model(&campaign.Campaign{}).Where("id = ?", "cp-1").Update("status", campaign.StatusPaused).Error)
			},
			err: ErrCampaignInactive,
		},
		{
			name: "user removed",
			setup: func(t *testing.T, s *Service) {
				require.NoError(t, s.db.Delete(&Balance{}, "user_id = ?", "user-1").Error)
			},
			err: ErrBalanceNotFound,
		},
		{
			name: "submission removed",
			setup: func(t *testing.T, s *Service) {
				require.NoError(t, s.db.Delete(&submission.Submission{}, "id = ?", "sub-1").Error)
			},
			err: ErrSubmissionNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t)
			tc.setup(t, svc)

			_, err := svc.Credit(context.Background(), request("sample-1"), constant("10"))
			require.ErrorIs(t, err, tc.err)

			var cp campaign.Campaign
			require.NoError(t, svc.db.Unscoped().First(&cp, "id = ?", "cp-1").Error)
			require.True(t, cp.Spent.IsZero())

			var clip submission.Clip
			require.NoError(t, svc.db.First(&clip, "id = ?", "clip-1").Error)
			require.True(t, clip.Earnings.IsZero())

			var entries int64
			require.NoError(t, svc.db.Model(&EarningEntry{}).Count(&entries).Error)
			require.Zero(t, entries)
		})
	}
}

func TestCreditRejectsAmountBeyondBudget(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Credit(context.Background(), request("sample-1"), constant("1000.000001"))
	require.ErrorIs(t, err, ErrBudgetExceeded)

	st := snapshot(t, svc)
	require.True(t, st.spent.IsZero())
	require.Zero(t, st.entries)
}

func TestCreditPlanErrorAborts(t *testing.T) {
	svc := newTestService(t)
	boom := errors.New("boom")

	_, err := svc.Credit(context.Background(), request("sample-1"), func(Snapshot) (decimal.Decimal, error) {
		return decimal.Zero, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestReconcileAfterCredits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i, amount := range []string{"12.5", "0.000001", "30"} {
		_, err := svc.Credit(ctx, request("sample-"+string(rune('a'+i))), constant(amount))
		require.NoError(t, err)
	}

	audit, err := svc.Reconcile(ctx, "cp-1")
	require.NoError(t, err)
	require.True(t, audit.Balanced())
	require.Equal(t, 3, audit.Entries)
	requireDecimal(t, "42.500001", audit.Spent)
	requireDecimal(t, "42.500001", audit.ClipEarnings)
	requireDecimal(t, "42.500001", audit.EntryTotal)

	valid, err := svc.VerifyChain(ctx, "cp-1")
	require.NoError(t, err)
	require.True(t, valid)

	require.NoError(t, svc.db.Model(&EarningEntry{}).Where("sequence = ?", 2).Update("amount", dec("5")).Error)

	audit, err = svc.Reconcile(ctx, "cp-1")
	require.NoError(t, err)
	require.False(t, audit.ChainValid)
	require.False(t, audit.Balanced())
}

func TestReconcileUnknownCampaign(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Reconcile(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestGetBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, request("sample-1"), constant("3"))
	require.NoError(t, err)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	requireDecimal(t, "3", bal.TotalEarnings)

	_, err = svc.GetBalance(ctx, "nobody")
	require.ErrorIs(t, err, ErrBalanceNotFound)

	_, err = svc.GetBalance(ctx, "")
	require.ErrorIs(t, err, ErrBalanceNotFound)
}

func TestVerifyChainValid(t *testing.T) {
	first := &EarningEntry{
		ID:          "entry-1",
		CampaignID:  "cp-1",
		Sequence:    1,
		ReferenceID: "sample-1",
		Amount:      dec("10"),
		SpentAfter:  dec("10"),
		CreatedAt:   time.Now(),
	}
	first.Hash = first.GenerateHash()

	second := &EarningEntry{
		ID:           "entry-2",
		CampaignID:   "cp-1",
		Sequence:     2,
		ReferenceID:  "sample-2",
		Amount:       dec("5"),
		SpentAfter:   dec("15"),
		PreviousHash: first.Hash,
		CreatedAt:    time.Now().Add(time.Minute),
	}
	second.Hash = second.GenerateHash()

	svc := &Service{
		entries: &repoMock[EarningEntry]{
			findFn: func(ctx context.Context, _ *EarningEntry, opts ...option.QueryOption) ([]*EarningEntry, error) {
				return []*EarningEntry{first, second}, nil
			},
		},
	}

	valid, err := svc.VerifyChain(context.Background(), "cp-1")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestVerifyChainInvalid(t *testing.T) {
	first := &EarningEntry{
		ID:          "entry-1",
		CampaignID:  "cp-1",
		Sequence:    1,
		ReferenceID: "sample-1",
		Amount:      dec("10"),
		SpentAfter:  dec("10"),
		CreatedAt:   time.Now(),
	}
	first.Hash = first.GenerateHash()

	second := &EarningEntry{
		ID:           "entry-2",
		CampaignID:   "cp-1",
		Sequence:     2,
		ReferenceID:  "sample-2",
		Amount:       dec("5"),
		SpentAfter:   dec("15"),
		PreviousHash: first.Hash,
		Hash:         "invalid",
		CreatedAt:    time.Now().Add(time.Minute),
	}

	svc := &Service{
		entries: &repoMock[EarningEntry]{
			findFn: func(ctx context.Context, _ *EarningEntry, opts ...option.QueryOption) ([]*EarningEntry, error) {
				return []*EarningEntry{first, second}, nil
			},
		},
	}

	valid, err := svc.VerifyChain(context.Background(), "cp-1")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyChainRequiresCampaign(t *testing.T) {
	svc := &Service{
		entries: &repoMock[EarningEntry]{
			findFn: func(context.Context, *EarningEntry, ...option.QueryOption) ([]*EarningEntry, error) {
				t.Fatal("entries must not be loaded without a campaign")
				return nil, nil
			},
		},
	}

	valid, err := svc.VerifyChain(context.Background(), "")
	require.ErrorIs(t, err, ErrCampaignNotFound)
	require.False(t, valid)
}

func TestHashIgnoresDatabasePrecision(t *testing.T) {
	e := &EarningEntry{ID: "e", Amount: dec("10"), SpentAfter: dec("10.5"), CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	reloaded := *e
	reloaded.Amount = dec("10.000000")
	reloaded.SpentAfter = dec("10.500000")
	reloaded.CreatedAt = e.CreatedAt.In(time.FixedZone("WIB", 7*3600))

	require.Equal(t, e.GenerateHash(), reloaded.GenerateHash())
}

func TestCreditConcurrentSameReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := svc.Credit(ctx, request("sample-1"), constant("10"))
			errs <- err
		}()
	}

	var applied, duplicates int
	for range 2 {
		err := <-errs
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrDuplicateReference):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, applied)
	require.Equal(t, 1, duplicates)

	st := snapshot(t, svc)
	requireDecimal(t, "10", st.spent)
	require.EqualValues(t, 1, st.entries)
}
