package contract

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/repository/memory"
)

type fixture struct {
	store      *repository.Store
	svc        *Service
	employer   uuid.UUID
	contractor uuid.UUID
}

func newFixture() *fixture {
	store := memory.NewStore()
	return &fixture{
		store:      store,
		svc:        NewService(store.Contracts, zap.NewNop()),
		employer:   uuid.New(),
		contractor: uuid.New(),
	}
}

func (f *fixture) draft(t *testing.T) *model.Contract {
	t.Helper()
	c, err := f.svc.CreateDraft(context.Background(), f.employer, CreateDraftInput{
		ContractorID: f.contractor,
		Title:        "Website",
		Currency:     "usd",
		Milestones:   []MilestoneInput{{Title: "Design", Amount: 1000}, {Title: "Build", Amount: 4000}},
	})
	require.NoError(t, err)
	return c
}

func TestDraftSignActivates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	assert.Equal(t, model.ContractDraft, c.Status)
	assert.Equal(t, "USD", c.Currency)
	require.Len(t, c.Milestones, 2)
	assert.Equal(t, 2, c.Milestones[1].Position)

	_, err := f.svc.Sign(ctx, c.ID, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	signed, err := f.svc.Sign(ctx, c.ID, f.contractor)
	require.NoError(t, err)
	assert.Equal(t, model.ContractActive, signed.Status)
	assert.NotNil(t, signed.ContractorSignedAt)

	_, err = f.svc.Sign(ctx, c.ID, f.contractor)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestMilestoneFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	mid := c.Milestones[0].ID

	_, err := f.svc.SubmitMilestone(ctx, c.ID, mid, f.contractor)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState), "draft contract")

	_, err = f.svc.Sign(ctx, c.ID, f.contractor)
	require.NoError(t, err)

	_, err = f.svc.ApproveMilestone(ctx, c.ID, mid, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState), "not yet submitted")

	_, err = f.svc.SubmitMilestone(ctx, c.ID, mid, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	m, err := f.svc.SubmitMilestone(ctx, c.ID, mid, f.contractor)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneSubmitted, m.Status)

	m, err = f.svc.ApproveMilestone(ctx, c.ID, mid, f.employer)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneApproved, m.Status)
}

func TestApprove_CancelledContractIsInvalidState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	_, err := f.svc.Cancel(ctx, c.ID, f.employer)
	require.NoError(t, err)

	_, err = f.svc.ApproveMilestone(ctx, c.ID, c.Milestones[0].ID, f.employer)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidState, appErr.Code)
	assert.Contains(t, appErr.Message, "cancelled")
}

func TestCancel_RefusedWhenEscrowFunded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	mid := c.Milestones[0].ID
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1"))
	require.NoError(t, f.store.Contracts.ConfirmFunding(ctx, c.ID, mid, model.ProviderStripe, "cs_1", nil))

	_, err := f.svc.Cancel(ctx, c.ID, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestCancel_RefusedWhileCheckoutOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	require.NoError(t, f.store.Contracts.StartFunding(ctx, c.ID, c.Milestones[1].ID, model.ProviderYoco, "ch_1"))

	_, err := f.svc.Cancel(ctx, c.ID, f.employer)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidState, appErr.Code)
	assert.Contains(t, appErr.Message, "payment in progress")

	assert.ErrorIs(t, f.store.Contracts.Cancel(ctx, c.ID, nil), repository.ErrStale)
}

func TestComplete_RequiresAllPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)
	_, err := f.svc.Sign(ctx, c.ID, f.contractor)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, c.ID, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestAddMilestone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.draft(t)

	m, err := f.svc.AddMilestone(ctx, c.ID, f.employer, MilestoneInput{Title: "QA", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Position)

	_, err = f.svc.AddMilestone(ctx, c.ID, f.employer, MilestoneInput{Title: "QA", Amount: 0})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestGet_PartyOnly(t *testing.T) {
	f := newFixture()
	c := f.draft(t)
	_, err := f.svc.Get(context.Background(), c.ID, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	_, err = f.svc.Get(context.Background(), uuid.New(), f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
