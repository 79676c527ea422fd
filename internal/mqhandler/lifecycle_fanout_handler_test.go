package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/email"
	"careerhub/internal/model"
	"careerhub/internal/realtime"
	"careerhub/internal/repository"
	"careerhub/internal/repository/memory"
	"careerhub/internal/service/notification"
	"careerhub/pkg/util"
)

type sentMail struct {
	kind email.Kind
	to   string
	data email.Data
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) record(kind email.Kind, to string, data email.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, data: data})
	return m.err
}

func (m *fakeMailer) SendProposalAccepted(_ context.Context, to string, data email.Data) error {
	return m.record(email.KindProposalAccepted, to, data)
}

func (m *fakeMailer) SendContractCreated(_ context.Context, to string, data email.Data) error {
	return m.record(email.KindContractCreated, to, data)
}

func (m *fakeMailer) SendContractSigned(_ context.Context, to string, data email.Data) error {
	return m.record(email.KindContractSigned, to, data)
}

func (m *fakeMailer) SendMilestoneFunded(_ context.Context, to string, data email.Data) error {
	return m.record(email.KindMilestoneFunded, to, data)
}

func (m *fakeMailer) SendPaymentReleased(_ context.Context, to string, data email.Data) error {
	return m.record(email.KindPaymentReleased, to, data)
}

type fanoutFixture struct {
	store      *repository.Store
	mailer     *fakeMailer
	handler    *LifecycleFanoutHandler
	employer   *model.User
	contractor *model.User
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	t.Helper()
	store := memory.NewStore()
	f := &fanoutFixture{
		store:      store,
		mailer:     &fakeMailer{},
		employer:   &model.User{ID: uuid.New(), Email: "boss@example.com", FullName: "Boss"},
		contractor: &model.User{ID: uuid.New(), Email: "dev@example.com", FullName: "Dev"},
	}
	require.NoError(t, store.Users.Create(context.Background(), f.employer))
	require.NoError(t, store.Users.Create(context.Background(), f.contractor))

	notifications := notification.NewService(store.Notifications, realtime.NewHub(zap.NewNop()), zap.NewNop())
	f.handler = NewLifecycleFanoutHandler(store.Users, store.Contracts, notifications, f.mailer,
		util.NewDeduper(nil, time.Hour), "https://app.example", zap.NewNop())
	return f
}

func (f *fanoutFixture) payload(t *testing.T, p mqcontracts.LifecycleEventPayload) json.RawMessage {
	t.Helper()
	if p.EventID == "" {
		p.EventID = uuid.NewString()
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func (f *fanoutFixture) notificationsOf(t *testing.T, userID uuid.UUID) []model.Notification {
	t.Helper()
	out, err := f.store.Notifications.ListByUser(context.Background(), userID, 100)
	require.NoError(t, err)
	return out
}

func TestFanout_PaymentReleasedNotifiesBothParties(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()
	raw := f.payload(t, mqcontracts.LifecycleEventPayload{
		Type:         mqcontracts.PaymentReleased,
		ContractID:   uuid.NewString(),
		MilestoneID:  uuid.NewString(),
		Title:        "MVP",
		EmployerID:   f.employer.ID.String(),
		ContractorID: f.contractor.ID.String(),
		Currency:     "USD",
		Amount:       5000,
		PlatformFee:  250,
		NetAmount:    4750,
	})

	require.NoError(t, f.handler.Handle(ctx, raw))

	contractorNotes := f.notificationsOf(t, f.contractor.ID)
	require.Len(t, contractorNotes, 1)
	assert.Equal(t, mqcontracts.PaymentReleased, contractorNotes[0].Type)
	assert.Contains(t, contractorNotes[0].Message, "USD 47.50")
	assert.Len(t, f.notificationsOf(t, f.employer.ID), 1)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, email.KindPaymentReleased, mail.kind)
	assert.Equal(t, "dev@example.com", mail.to)
	assert.Equal(t, "Dev", mail.data.RecipientName)
	assert.Equal(t, "USD 2.50", mail.data.PlatformFee)
	assert.Equal(t, "MVP", mail.data.MilestoneTitle)
}

func TestFanout_RedeliveryDoesNotDuplicate(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()
	raw := f.payload(t, mqcontracts.LifecycleEventPayload{
		Type:        mqcontracts.ProposalAccepted,
		JobTitle:    "Landing page",
		EmployerID:  f.employer.ID.String(),
		ApplicantID: f.contractor.ID.String(),
	})

	require.NoError(t, f.handler.Handle(ctx, raw))
	require.NoError(t, f.handler.Handle(ctx, raw))

	assert.Len(t, f.notificationsOf(t, f.contractor.ID), 1)
	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Landing page", f.mailer.sent[0].data.JobTitle)
}

func TestFanout_EmailFailureIsNotPropagated(t *testing.T) {
	f := newFanoutFixture(t)
	f.mailer.err = errors.New("smtp down")
	raw := f.payload(t, mqcontracts.LifecycleEventPayload{
		Type:         mqcontracts.ContractSigned,
		ContractID:   uuid.NewString(),
		Title:        "Website",
		EmployerID:   f.employer.ID.String(),
		ContractorID: f.contractor.ID.String(),
	})

	require.NoError(t, f.handler.Handle(context.Background(), raw))
	assert.Len(t, f.notificationsOf(t, f.employer.ID), 1)
	assert.Len(t, f.mailer.sent, 1)
}

func TestFanout_ProposalSubmittedNotifiesEmployerOnly(t *testing.T) {
	f := newFanoutFixture(t)
	raw := f.payload(t, mqcontracts.LifecycleEventPayload{
		Type:        mqcontracts.ProposalSubmitted,
		JobID:       uuid.NewString(),
		JobTitle:    "API work",
		EmployerID:  f.employer.ID.String(),
		ApplicantID: f.contractor.ID.String(),
	})

	require.NoError(t, f.handler.Handle(context.Background(), raw))
	assert.Len(t, f.notificationsOf(t, f.employer.ID), 1)
	assert.Empty(t, f.notificationsOf(t, f.contractor.ID))
	assert.Empty(t, f.mailer.sent)
}

func TestFanout_MalformedPayloadIsDropped(t *testing.T) {
	f := newFanoutFixture(t)
	assert.NoError(t, f.handler.Handle(context.Background(), json.RawMessage(`{not json`)))
}
