package proposal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/repository/memory"
)

type fixture struct {
	store    *repository.Store
	svc      *Service
	employer uuid.UUID
	job      *model.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	employer := uuid.New()
	job := &model.Job{ID: uuid.New(), OwnerID: employer, Title: "Build API", Currency: "USD", Status: model.JobStatusOpen}
	require.NoError(t, store.Jobs.Create(context.Background(), job))
	return &fixture{
		store:    store,
		svc:      NewService(store.Jobs, store.Proposals, zap.NewNop()),
		employer: employer,
		job:      job,
	}
}

func validInput() SubmitInput {
	return SubmitInput{CoverLetter: "I can do it", ProposedRate: 5000, RateType: model.RateFixed, Currency: "usd"}
}

func TestSubmit_CreatesPendingAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.job.ID, uuid.New(), validInput())
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, p.Status)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, f.employer, p.EmployerID)

	pending, err := f.store.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mqcontracts.ProposalSubmitted, pending[0].RoutingKey)
}

func TestSubmit_DuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()

	_, err := f.svc.Submit(ctx, f.job.ID, applicant, validInput())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.job.ID, applicant, validInput())
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestSubmit_SelfApplicationIsConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), f.job.ID, f.employer, validInput())

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
	assert.Equal(t, "cannot apply to own job", appErr.Message)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.ProposedRate = 0
	_, err := f.svc.Submit(context.Background(), f.job.ID, uuid.New(), in)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = f.svc.Submit(context.Background(), uuid.New(), uuid.New(), validInput())
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestSetStatus_OnlyEmployer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Submit(ctx, f.job.ID, uuid.New(), validInput())
	require.NoError(t, err)

	_, _, err = f.svc.SetStatus(ctx, p.ID, p.ApplicantID, model.ProposalShortlisted)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}

func TestSetStatus_MissingJobIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := &model.Proposal{
		ID:          uuid.New(),
		JobID:       uuid.New(),
		ApplicantID: uuid.New(),
		EmployerID:  f.employer,
		Status:      model.ProposalPending,
		Currency:    "USD",
	}
	require.NoError(t, f.store.Proposals.Create(ctx, p, nil))

	_, _, err := f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalShortlisted)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	_, msg := apperr.Resolve(err)
	assert.Equal(t, "job not found", msg)
}

func TestSetStatus_TransitionTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Submit(ctx, f.job.ID, uuid.New(), validInput())
	require.NoError(t, err)

	_, _, err = f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalAccepted)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState), "pending cannot jump to accepted")

	_, _, err = f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalShortlisted)
	require.NoError(t, err)

	got, c, err := f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, got.Status)
	require.NotNil(t, c)
	assert.Equal(t, model.ContractActive, c.Status)
	require.Len(t, c.Milestones, 1)
	assert.Equal(t, int64(5000), c.Milestones[0].Amount)
	assert.Equal(t, "USD", c.Currency)

	stored, err := f.store.Contracts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ApplicantID, stored.ContractorID)

	_, _, err = f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalRejected)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestSetStatus_AcceptEmitsAcceptedAndCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Submit(ctx, f.job.ID, uuid.New(), validInput())
	require.NoError(t, err)
	_, _, err = f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalShortlisted)
	require.NoError(t, err)
	_, c, err := f.svc.SetStatus(ctx, p.ID, f.employer, model.ProposalAccepted)
	require.NoError(t, err)

	pending, err := f.store.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	keys := make([]string, 0, len(pending))
	for _, ev := range pending {
		keys = append(keys, ev.RoutingKey)
	}
	assert.Equal(t, []string{
		mqcontracts.ProposalSubmitted,
		mqcontracts.ProposalStatusChanged,
		mqcontracts.ProposalAccepted,
		mqcontracts.ContractCreated,
	}, keys)

	var payload mqcontracts.LifecycleEventPayload
	require.NoError(t, json.Unmarshal(pending[3].Payload, &payload))
	assert.Equal(t, c.ID.String(), payload.ContractID)
	assert.NotEmpty(t, payload.EventID)
}

func TestWithdraw_FreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()
	p, err := f.svc.Submit(ctx, f.job.ID, applicant, validInput())
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, p.ID, f.employer)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	_, err = f.svc.Withdraw(ctx, p.ID, applicant)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.job.ID, applicant, validInput())
	assert.NoError(t, err)
}

func TestListForJob_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, f.job.ID, uuid.New(), validInput())
	require.NoError(t, err)

	list, err := f.svc.ListForJob(ctx, f.job.ID, f.employer)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListForJob(ctx, f.job.ID, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}
