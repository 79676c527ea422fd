package contract

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/service/events"
	"careerhub/internal/validation"
	"careerhub/pkg/outbox"
)

type MilestoneInput struct {
	Title  string `json:"title" validate:"required,max=200"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

type CreateDraftInput struct {
	ContractorID uuid.UUID        `json:"contractor_id" validate:"required"`
	Title        string           `json:"title" validate:"required,max=200"`
	Currency     string           `json:"currency" validate:"required,iso4217"`
	Milestones   []MilestoneInput `json:"milestones" validate:"required,min=1,dive"`
}

type Service struct {
	contracts repository.ContractRepository
	logger    *zap.Logger
}

func NewService(contracts repository.ContractRepository, logger *zap.Logger) *Service {
	return &Service{contracts: contracts, logger: logger}
}

// CreateDraft 雇主手动创建合同，承包方签署后生效
func (s *Service) CreateDraft(ctx context.Context, employerID uuid.UUID, in CreateDraftInput) (*model.Contract, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.ContractorID == employerID {
		return nil, apperr.Validation("contractor must be a different user")
	}

	c := &model.Contract{
		ID:           uuid.New(),
		EmployerID:   employerID,
		ContractorID: in.ContractorID,
		Title:        in.Title,
		Currency:     in.Currency,
		Status:       model.ContractDraft,
	}
	for i, m := range in.Milestones {
		c.Milestones = append(c.Milestones, model.Milestone{
			ID:           uuid.New(),
			Position:     i + 1,
			Title:        m.Title,
			Amount:       m.Amount,
			Status:       model.MilestonePending,
			EscrowStatus: model.EscrowUnfunded,
		})
	}

	ev, err := s.event(ctx, mqcontracts.ContractCreated, c, nil)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.Create(ctx, c, []*outbox.Event{ev}); err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("Draft contract created", zap.String("contract_id", c.ID.String()))
	return c, nil
}

func (s *Service) Get(ctx context.Context, id, actor uuid.UUID) (*model.Contract, error) {
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(actor) {
		return nil, apperr.Forbidden("not a party to this contract")
	}
	return c, nil
}

// Load 不做权限检查
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	c, err := s.contracts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contract not found")
		}
		return nil, apperr.Internal(err)
	}
	return c, nil
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]model.Contract, error) {
	out, err := s.contracts.ListByParty(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) Sign(ctx context.Context, id, actor uuid.UUID) (*model.Contract, error) {
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ContractorID != actor {
		return nil, apperr.Forbidden("only the contractor can sign this contract")
	}
	if c.ContractorSignedAt != nil {
		return nil, apperr.Conflict("contract already signed")
	}
	if c.Status != model.ContractDraft && c.Status != model.ContractActive {
		return nil, apperr.InvalidState("cannot sign a " + c.Status + " contract")
	}

	ev, err := s.event(ctx, mqcontracts.ContractSigned, c, nil)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.Sign(ctx, id, actor, []*outbox.Event{ev}); err != nil {
		return nil, s.mapWriteErr(err)
	}
	return s.Load(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id, actor uuid.UUID) (*model.Contract, error) {
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.EmployerID != actor {
		return nil, apperr.Forbidden("only the employer can cancel this contract")
	}
	if c.Status != model.ContractDraft && c.Status != model.ContractActive {
		return nil, apperr.InvalidState("cannot cancel a " + c.Status + " contract")
	}
	if c.HasFundedEscrow() {
		return nil, apperr.InvalidState("cannot cancel a contract with funded escrow")
	}
	if c.HasOpenCheckout() {
		return nil, apperr.InvalidState("cannot cancel a contract with a payment in progress")
	}

	ev, err := s.event(ctx, mqcontracts.ContractCancelled, c, nil)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.Cancel(ctx, id, []*outbox.Event{ev}); err != nil {
		return nil, s.mapWriteErr(err)
	}
	c.Status = model.ContractCancelled
	return c, nil
}

func (s *Service) Complete(ctx context.Context, id, actor uuid.UUID) (*model.Contract, error) {
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.EmployerID != actor {
		return nil, apperr.Forbidden("only the employer can complete this contract")
	}
	if c.Status != model.ContractActive {
		return nil, apperr.InvalidState("cannot complete a " + c.Status + " contract")
	}
	if !c.AllMilestonesPaid() {
		return nil, apperr.InvalidState("all milestones must be paid before completion")
	}

	ev, err := s.event(ctx, mqcontracts.ContractCompleted, c, nil)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.Complete(ctx, id, []*outbox.Event{ev}); err != nil {
		return nil, s.mapWriteErr(err)
	}
	c.Status = model.ContractCompleted
	return c, nil
}

func (s *Service) AddMilestone(ctx context.Context, id, actor uuid.UUID, in MilestoneInput) (*model.Milestone, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.EmployerID != actor {
		return nil, apperr.Forbidden("only the employer can add milestones")
	}
	if c.Status != model.ContractDraft && c.Status != model.ContractActive {
		return nil, apperr.InvalidState("cannot add milestones to a " + c.Status + " contract")
	}

	m := &model.Milestone{
		ID:           uuid.New(),
		ContractID:   c.ID,
		Title:        in.Title,
		Amount:       in.Amount,
		Status:       model.MilestonePending,
		EscrowStatus: model.EscrowUnfunded,
	}
	if err := s.contracts.AddMilestone(ctx, m); err != nil {
		return nil, s.mapWriteErr(err)
	}
	return m, nil
}

// SubmitMilestone 承包方提交工作：pending -> submitted
func (s *Service) SubmitMilestone(ctx context.Context, contractID, milestoneID, actor uuid.UUID) (*model.Milestone, error) {
	c, m, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if c.ContractorID != actor {
		return nil, apperr.Forbidden("only the contractor can submit milestones")
	}
	if c.Status != model.ContractActive {
		return nil, apperr.InvalidState("contract is " + c.Status)
	}
	if m.Status != model.MilestonePending {
		return nil, apperr.InvalidState("milestone is " + m.Status + ", expected pending")
	}
	return s.transition(ctx, c, m, model.MilestoneSubmitted, mqcontracts.MilestoneSubmitted)
}

// ApproveMilestone 雇主验收：submitted -> approved
func (s *Service) ApproveMilestone(ctx context.Context, contractID, milestoneID, actor uuid.UUID) (*model.Milestone, error) {
	c, m, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if c.EmployerID != actor {
		return nil, apperr.Forbidden("only the employer can approve milestones")
	}
	if c.Status == model.ContractCancelled {
		return nil, apperr.InvalidState("cannot approve a milestone on a cancelled contract")
	}
	if c.Status != model.ContractActive {
		return nil, apperr.InvalidState("contract is " + c.Status)
	}
	if m.Status != model.MilestoneSubmitted {
		return nil, apperr.InvalidState("milestone is " + m.Status + ", expected submitted")
	}
	return s.transition(ctx, c, m, model.MilestoneApproved, mqcontracts.MilestoneApproved)
}

func (s *Service) transition(ctx context.Context, c *model.Contract, m *model.Milestone, to, routingKey string) (*model.Milestone, error) {
	ev, err := s.event(ctx, routingKey, c, m)
	if err != nil {
		return nil, err
	}
	if err := s.contracts.TransitionMilestone(ctx, c.ID, m.ID, m.Status, to, []*outbox.Event{ev}); err != nil {
		return nil, s.mapWriteErr(err)
	}
	m.Status = to
	return m, nil
}

func (s *Service) loadMilestone(ctx context.Context, contractID, milestoneID uuid.UUID) (*model.Contract, *model.Milestone, error) {
	c, err := s.Load(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	m, ok := c.Milestone(milestoneID)
	if !ok {
		return nil, nil, apperr.NotFound("milestone not found")
	}
	return c, m, nil
}

func (s *Service) event(ctx context.Context, routingKey string, c *model.Contract, m *model.Milestone) (*outbox.Event, error) {
	p := mqcontracts.LifecycleEventPayload{
		ContractID:   c.ID.String(),
		Title:        c.Title,
		EmployerID:   c.EmployerID.String(),
		ContractorID: c.ContractorID.String(),
		Currency:     c.Currency,
		Status:       c.Status,
	}
	if c.ProposalID != nil {
		p.ProposalID = c.ProposalID.String()
	}
	if m != nil {
		p.MilestoneID = m.ID.String()
		p.Title = m.Title
		p.Amount = m.Amount
	}
	ev, err := events.New(ctx, events.AggregateContract, c.ID.String(), routingKey, p)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ev, nil
}

func (s *Service) mapWriteErr(err error) error {
	if errors.Is(err, repository.ErrStale) {
		return apperr.Conflict("contract was modified concurrently, reload and retry")
	}
	return apperr.Internal(err)
}
