//go:build integration

package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/migrations"
	"careerhub/pkg/db"
)

// 运行: CAREERHUB_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CAREERHUB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CAREERHUB_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.Migrate(ctx, pool, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	return NewPostgresStore(pool, zap.NewNop())
}

func seedUser(t *testing.T, s *Store) *model.User {
	t.Helper()
	u := &model.User{
		ID:               uuid.New(),
		Email:            uuid.NewString() + "@example.com",
		PasswordHash:     "x",
		Role:             model.RoleUser,
		SubscriptionTier: model.TierFree,
	}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

type pgFixture struct {
	store      *Store
	employer   *model.User
	contractor *model.User
}

func newPGFixture(t *testing.T) *pgFixture {
	s := openTestStore(t)
	return &pgFixture{store: s, employer: seedUser(t, s), contractor: seedUser(t, s)}
}

func (f *pgFixture) activeContract(t *testing.T) (*model.Contract, uuid.UUID) {
	t.Helper()
	mid := uuid.New()
	c := &model.Contract{
		ID:           uuid.New(),
		EmployerID:   f.employer.ID,
		ContractorID: f.contractor.ID,
		Title:        "Integration",
		Currency:     "USD",
		Status:       model.ContractActive,
		Milestones: []model.Milestone{{
			ID: mid, Position: 1, Title: "MVP", Amount: 5000,
			Status: model.MilestonePending, EscrowStatus: model.EscrowUnfunded,
		}},
	}
	require.NoError(t, f.store.Contracts.Create(context.Background(), c, nil))
	return c, mid
}

func (f *pgFixture) fundAndApprove(t *testing.T, c *model.Contract, mid uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	ref := "cs_" + mid.String()
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderStripe, ref))
	require.NoError(t, f.store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderStripe, ref, nil))
	require.NoError(t, f.store.Contracts.TransitionMilestone(ctx, c.ID, mid, model.MilestonePending, model.MilestoneSubmitted, nil))
	require.NoError(t, f.store.Contracts.TransitionMilestone(ctx, c.ID, mid, model.MilestoneSubmitted, model.MilestoneApproved, nil))
}

func TestPG_AcceptCreatesContractOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	job := &model.Job{ID: uuid.New(), OwnerID: f.employer.ID, Title: "API", Currency: "USD", Status: model.JobStatusOpen}
	require.NoError(t, f.store.Jobs.Create(ctx, job))
	p := &model.Proposal{
		ID: uuid.New(), JobID: job.ID, ApplicantID: f.contractor.ID, EmployerID: f.employer.ID,
		CoverLetter: "hi", ProposedRate: 5000, RateType: model.RateFixed, Currency: "USD",
		Status: model.ProposalShortlisted,
	}
	require.NoError(t, f.store.Proposals.Create(ctx, p, nil))

	newContract := func() *model.Contract {
		return &model.Contract{
			ID: uuid.New(), ProposalID: &p.ID, EmployerID: f.employer.ID, ContractorID: f.contractor.ID,
			Title: "API", Currency: "USD", Status: model.ContractActive,
			Milestones: []model.Milestone{{
				ID: uuid.New(), Position: 1, Title: "API", Amount: 5000,
				Status: model.MilestonePending, EscrowStatus: model.EscrowUnfunded,
			}},
		}
	}
	require.NoError(t, f.store.Proposals.Accept(ctx, p.ID, model.ProposalShortlisted, newContract(), nil))
	assert.ErrorIs(t, f.store.Proposals.Accept(ctx, p.ID, model.ProposalShortlisted, newContract(), nil), ErrStale)

	got, err := f.store.Proposals.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, got.Status)
}

func TestPG_CancelGuards(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	c, mid := f.activeContract(t)
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderYoco, "ch_"+mid.String()))
	assert.ErrorIs(t, f.store.Contracts.Cancel(ctx, c.ID, nil), ErrStale, "open checkout")

	funded, fmid := f.activeContract(t)
	f.fundAndApprove(t, funded, fmid)
	assert.ErrorIs(t, f.store.Contracts.Cancel(ctx, funded.ID, nil), ErrStale, "funded escrow")

	clean, _ := f.activeContract(t)
	require.NoError(t, f.store.Contracts.Cancel(ctx, clean.ID, nil))
	assert.ErrorIs(t, f.store.Contracts.Cancel(ctx, clean.ID, nil), ErrStale)
}

func TestPG_ConfirmFundingAnyCheckout(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	c, mid := f.activeContract(t)
	first, second := "cs_a_"+mid.String(), "ch_b_"+mid.String()
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderStripe, first))
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderYoco, second))

	found, m, err := f.store.Contracts.FindByFundingReference(ctx, model.ProviderStripe, first)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	assert.Equal(t, second, m.FundingReference)

	require.NoError(t, f.store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderStripe, first, nil))
	assert.ErrorIs(t, f.store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderYoco, second, nil), ErrStale)

	_, m, err = f.store.Contracts.FindByFundingReference(ctx, model.ProviderYoco, second)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowFunded, m.EscrowStatus)
	assert.Equal(t, first, m.FundingReference)
}

func TestPG_ClaimPayoutSingleWinner(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	c, mid := f.activeContract(t)
	f.fundAndApprove(t, c, mid)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.store.Contracts.ClaimPayout(ctx, c.ID, mid) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	require.NoError(t, f.store.Contracts.ReleasePayoutClaim(ctx, c.ID, mid))
	assert.NoError(t, f.store.Contracts.ClaimPayout(ctx, c.ID, mid))
}

func TestPG_CompletePayoutOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	c, mid := f.activeContract(t)
	f.fundAndApprove(t, c, mid)
	require.NoError(t, f.store.Contracts.ClaimPayout(ctx, c.ID, mid))

	ptx := func() *model.PaymentTransaction {
		return &model.PaymentTransaction{
			ID: uuid.New(), Type: model.TransactionMilestonePayout, Provider: model.ProviderStripe,
			TransferID: "tr_" + mid.String(), ContractID: c.ID, MilestoneID: mid,
			ContractorID: f.contractor.ID, EmployerID: f.employer.ID,
			GrossAmount: 5000, PlatformFee: 250, NetAmount: 4750, Currency: "USD",
			Status: model.TransactionCompleted,
		}
	}
	require.NoError(t, f.store.Contracts.CompletePayout(ctx, ptx(), nil))
	assert.ErrorIs(t, f.store.Contracts.CompletePayout(ctx, ptx(), nil), ErrStale)

	fresh, err := f.store.Contracts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), fresh.TotalPaid)
	m, ok := fresh.Milestone(mid)
	require.True(t, ok)
	assert.Equal(t, model.MilestonePaid, m.Status)
	assert.Equal(t, model.EscrowReleased, m.EscrowStatus)
	assert.Nil(t, m.PayoutClaimedAt)

	txs, err := f.store.Payments.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
