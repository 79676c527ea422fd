package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/pkg/outbox"
)

func newProposal(jobID, applicantID uuid.UUID) *model.Proposal {
	return &model.Proposal{
		ID:           uuid.New(),
		JobID:        jobID,
		ApplicantID:  applicantID,
		EmployerID:   uuid.New(),
		CoverLetter:  "hello",
		ProposedRate: 1000,
		RateType:     model.RateFixed,
		Currency:     "USD",
		Status:       model.ProposalPending,
	}
}

func TestProposalCreate_OneLivePerJobAndApplicant(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	jobID, applicant := uuid.New(), uuid.New()

	first := newProposal(jobID, applicant)
	require.NoError(t, store.Proposals.Create(ctx, first, nil))

	err := store.Proposals.Create(ctx, newProposal(jobID, applicant), nil)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	require.NoError(t, store.Proposals.UpdateStatus(ctx, first.ID, model.ProposalPending, model.ProposalWithdrawn, nil))
	assert.NoError(t, store.Proposals.Create(ctx, newProposal(jobID, applicant), nil))
}

func TestProposalUpdateStatus_StaleFromStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := newProposal(uuid.New(), uuid.New())
	require.NoError(t, store.Proposals.Create(ctx, p, nil))

	err := store.Proposals.UpdateStatus(ctx, p.ID, model.ProposalShortlisted, model.ProposalRejected, nil)
	assert.ErrorIs(t, err, repository.ErrStale)
}

func TestProposalAccept_CreatesContractAndEvents(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := newProposal(uuid.New(), uuid.New())
	require.NoError(t, store.Proposals.Create(ctx, p, nil))

	c := &model.Contract{
		ID:           uuid.New(),
		ProposalID:   &p.ID,
		EmployerID:   p.EmployerID,
		ContractorID: p.ApplicantID,
		Currency:     p.Currency,
		Status:       model.ContractActive,
		Milestones: []model.Milestone{{
			ID: uuid.New(), Position: 1, Amount: p.ProposedRate,
			Status: model.MilestonePending, EscrowStatus: model.EscrowUnfunded,
		}},
	}
	ev, err := outbox.NewEvent("proposal", p.ID.String(), "proposal.accepted", map[string]string{"x": "y"})
	require.NoError(t, err)

	require.NoError(t, store.Proposals.Accept(ctx, p.ID, model.ProposalPending, c, []*outbox.Event{ev}))

	got, err := store.Contracts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Milestones, 1)
	assert.Equal(t, c.ID, got.Milestones[0].ContractID)

	pending, err := store.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "proposal.accepted", pending[0].RoutingKey)

	// second accept of the same proposal loses
	err = store.Proposals.Accept(ctx, p.ID, model.ProposalPending, c, nil)
	assert.ErrorIs(t, err, repository.ErrStale)
}

func seedFundedContract(t *testing.T, store *repository.Store) (*model.Contract, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	mid := uuid.New()
	c := &model.Contract{
		ID:           uuid.New(),
		EmployerID:   uuid.New(),
		ContractorID: uuid.New(),
		Currency:     "USD",
		Status:       model.ContractActive,
		Milestones: []model.Milestone{{
			ID: mid, Position: 1, Amount: 5000,
			Status: model.MilestoneApproved, EscrowStatus: model.EscrowUnfunded,
		}},
	}
	require.NoError(t, store.Contracts.Create(ctx, c, nil))
	require.NoError(t, store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1"))
	require.NoError(t, store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1", nil))
	return c, mid
}

func TestConfirmFunding_ReplayIsStale(t *testing.T) {
	store := NewStore()
	c, mid := seedFundedContract(t, store)

	err := store.Contracts.ConfirmFunding(context.Background(), c.ID, mid, model.ProviderStripe, "cs_1", nil)
	assert.ErrorIs(t, err, repository.ErrStale)

	_, m, err := store.Contracts.FindByFundingReference(context.Background(), model.ProviderStripe, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowFunded, m.EscrowStatus)
}

func TestConfirmFunding_AnyRegisteredCheckout(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	mid := uuid.New()
	c := &model.Contract{
		ID:           uuid.New(),
		EmployerID:   uuid.New(),
		ContractorID: uuid.New(),
		Currency:     "ZAR",
		Status:       model.ContractActive,
		Milestones: []model.Milestone{{
			ID: mid, Position: 1, Amount: 5000,
			Status: model.MilestonePending, EscrowStatus: model.EscrowUnfunded,
		}},
	}
	require.NoError(t, store.Contracts.Create(ctx, c, nil))
	require.NoError(t, store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1"))
	require.NoError(t, store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderYoco, "ch_2"))

	assert.ErrorIs(t, store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderYoco, "cs_1", nil), repository.ErrStale)

	found, m, err := store.Contracts.FindByFundingReference(ctx, model.ProviderStripe, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	assert.Equal(t, mid, m.ID)

	require.NoError(t, store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1", nil))
	_, m, err = store.Contracts.FindByFundingReference(ctx, model.ProviderYoco, "ch_2")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowFunded, m.EscrowStatus)
	assert.Equal(t, "cs_1", m.FundingReference)
}

func TestClaimPayout_SingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	c, mid := seedFundedContract(t, store)

	require.NoError(t, store.Contracts.ClaimPayout(ctx, c.ID, mid))
	assert.ErrorIs(t, store.Contracts.ClaimPayout(ctx, c.ID, mid), repository.ErrStale)

	require.NoError(t, store.Contracts.ReleasePayoutClaim(ctx, c.ID, mid))
	assert.NoError(t, store.Contracts.ClaimPayout(ctx, c.ID, mid))
}

func TestCompletePayout_UpdatesMilestoneAndLedger(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	c, mid := seedFundedContract(t, store)

	tx := &model.PaymentTransaction{
		ID: uuid.New(), Type: model.TransactionMilestonePayout, Provider: model.ProviderStripe,
		TransferID: "tr_1", ContractID: c.ID, MilestoneID: mid,
		ContractorID: c.ContractorID, EmployerID: c.EmployerID,
		GrossAmount: 5000, PlatformFee: 250, NetAmount: 4750, Currency: "USD",
		Status: model.TransactionCompleted,
	}
	require.NoError(t, store.Contracts.CompletePayout(ctx, tx, nil))

	got, err := store.Contracts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	m, _ := got.Milestone(mid)
	assert.Equal(t, model.MilestonePaid, m.Status)
	assert.Equal(t, model.EscrowReleased, m.EscrowStatus)
	assert.Equal(t, "tr_1", m.TransferID)
	assert.Equal(t, int64(5000), got.TotalPaid)

	assert.ErrorIs(t, store.Contracts.CompletePayout(ctx, tx, nil), repository.ErrStale)

	txs, err := store.Payments.ListByContractor(ctx, c.ContractorID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestCancel_RefusedWithFundedEscrow(t *testing.T) {
	store := NewStore()
	c, _ := seedFundedContract(t, store)
	assert.ErrorIs(t, store.Contracts.Cancel(context.Background(), c.ID, nil), repository.ErrStale)
}

func TestOutbox_MarkAsFailedMovesToFailed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := newProposal(uuid.New(), uuid.New())
	ev, err := outbox.NewEvent("proposal", p.ID.String(), "proposal.submitted", p)
	require.NoError(t, err)
	require.NoError(t, store.Proposals.Create(ctx, p, []*outbox.Event{ev}))

	require.NoError(t, store.Outbox.MarkAsFailed(ctx, ev.ID, 1))
	failed, err := store.Outbox.GetFailedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ev.ID, failed[0].ID)
}

func TestNotifications_MarkReadScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	owner := uuid.New()
	n := &model.Notification{ID: uuid.New(), UserID: owner, Type: "t", Title: "x", Message: "y"}
	require.NoError(t, store.Notifications.Create(ctx, n))

	assert.ErrorIs(t, store.Notifications.MarkRead(ctx, uuid.New(), n.ID), repository.ErrNotFound)
	require.NoError(t, store.Notifications.MarkRead(ctx, owner, n.ID))

	count, err := store.Notifications.CountUnread(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)
}
