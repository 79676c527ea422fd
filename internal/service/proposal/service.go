package proposal

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

type SubmitInput struct {
	CoverLetter  string `json:"cover_letter" validate:"required,max=20000"`
	ProposedRate int64  `json:"proposed_rate" validate:"gt=0"`
	RateType     string `json:"rate_type" validate:"required,oneof=fixed hourly"`
	Currency     string `json:"currency" validate:"required,iso4217"`
	Availability string `json:"availability" validate:"max=200"`
}

// transitions 雇主可执行的状态变更
var transitions = map[string][]string{
	model.ProposalPending:     {model.ProposalShortlisted, model.ProposalRejected},
	model.ProposalShortlisted: {model.ProposalRejected, model.ProposalAccepted},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Service struct {
	jobs      repository.JobRepository
	proposals repository.ProposalRepository
	logger    *zap.Logger
}

func NewService(jobs repository.JobRepository, proposals repository.ProposalRepository, logger *zap.Logger) *Service {
	return &Service{jobs: jobs, proposals: proposals, logger: logger}
}

// Submit 投递提案；同一 (job, applicant) 只能有一份未撤回提案
func (s *Service) Submit(ctx context.Context, jobID, applicantID uuid.UUID, in SubmitInput) (*model.Proposal, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal(err)
	}
	if job.OwnerID == applicantID {
		return nil, apperr.Conflict("cannot apply to own job")
	}
	if job.Status != model.JobStatusOpen {
		return nil, apperr.Validation("job is not accepting proposals")
	}

	p := &model.Proposal{
		ID:           uuid.New(),
		JobID:        job.ID,
		ApplicantID:  applicantID,
		EmployerID:   job.OwnerID,
		CoverLetter:  in.CoverLetter,
		ProposedRate: in.ProposedRate,
		RateType:     in.RateType,
		Currency:     in.Currency,
		Availability: in.Availability,
		Status:       model.ProposalPending,
	}

	ev, err := events.New(ctx, events.AggregateProposal, p.ID.String(), mqcontracts.ProposalSubmitted, mqcontracts.LifecycleEventPayload{
		ProposalID:  p.ID.String(),
		JobID:       job.ID.String(),
		JobTitle:    job.Title,
		EmployerID:  job.OwnerID.String(),
		ApplicantID: applicantID.String(),
		Status:      p.Status,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.proposals.Create(ctx, p, []*outbox.Event{ev}); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("you have already submitted a proposal for this job")
		}
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// SetStatus 雇主推进提案状态；accepted 同事务创建合同
func (s *Service) SetStatus(ctx context.Context, proposalID, actor uuid.UUID, status string) (*model.Proposal, *model.Contract, error) {
	p, err := s.find(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	if p.EmployerID != actor {
		return nil, nil, apperr.Forbidden("only the job's employer can change proposal status")
	}
	if !CanTransition(p.Status, status) {
		return nil, nil, apperr.InvalidState("cannot move proposal from " + p.Status + " to " + status)
	}

	job, err := s.jobs.FindByID(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.NotFound("job not found")
		}
		return nil, nil, apperr.Internal(err)
	}

	if status == model.ProposalAccepted {
		c, err := s.accept(ctx, p, job)
		if err != nil {
			return nil, nil, err
		}
		p.Status = status
		return p, c, nil
	}

	ev, err := events.New(ctx, events.AggregateProposal, p.ID.String(), mqcontracts.ProposalStatusChanged, mqcontracts.LifecycleEventPayload{
		ProposalID:  p.ID.String(),
		JobID:       p.JobID.String(),
		JobTitle:    job.Title,
		EmployerID:  p.EmployerID.String(),
		ApplicantID: p.ApplicantID.String(),
		Status:      status,
	})
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if err := s.proposals.UpdateStatus(ctx, p.ID, p.Status, status, []*outbox.Event{ev}); err != nil {
		return nil, nil, s.mapWriteErr(err)
	}
	p.Status = status
	return p, nil, nil
}

func (s *Service) accept(ctx context.Context, p *model.Proposal, job *model.Job) (*model.Contract, error) {
	c := &model.Contract{
		ID:           uuid.New(),
		ProposalID:   &p.ID,
		EmployerID:   p.EmployerID,
		ContractorID: p.ApplicantID,
		Title:        job.Title,
		Currency:     p.Currency,
		Status:       model.ContractActive,
		Milestones: []model.Milestone{{
			ID:           uuid.New(),
			Position:     1,
			Title:        job.Title,
			Amount:       p.ProposedRate,
			Status:       model.MilestonePending,
			EscrowStatus: model.EscrowUnfunded,
		}},
	}

	base := mqcontracts.LifecycleEventPayload{
		ProposalID:   p.ID.String(),
		JobID:        job.ID.String(),
		JobTitle:     job.Title,
		ContractID:   c.ID.String(),
		Title:        c.Title,
		EmployerID:   c.EmployerID.String(),
		ContractorID: c.ContractorID.String(),
		ApplicantID:  p.ApplicantID.String(),
		Currency:     c.Currency,
		Amount:       p.ProposedRate,
	}
	accepted := base
	accepted.Status = model.ProposalAccepted
	acceptedEv, err := events.New(ctx, events.AggregateProposal, p.ID.String(), mqcontracts.ProposalAccepted, accepted)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	created := base
	created.Status = c.Status
	createdEv, err := events.New(ctx, events.AggregateContract, c.ID.String(), mqcontracts.ContractCreated, created)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.proposals.Accept(ctx, p.ID, p.Status, c, []*outbox.Event{acceptedEv, createdEv}); err != nil {
		return nil, s.mapWriteErr(err)
	}

	s.logger.Info("Contract created from proposal",
		zap.String("proposal_id", p.ID.String()),
		zap.String("contract_id", c.ID.String()),
		zap.Int64("amount", p.ProposedRate),
		zap.String("currency", p.Currency),
	)
	return c, nil
}

// Withdraw 申请人撤回，释放 (job, applicant) 名额
func (s *Service) Withdraw(ctx context.Context, proposalID, actor uuid.UUID) (*model.Proposal, error) {
	p, err := s.find(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.ApplicantID != actor {
		return nil, apperr.Forbidden("only the applicant can withdraw this proposal")
	}
	if p.Status != model.ProposalPending && p.Status != model.ProposalShortlisted {
		return nil, apperr.InvalidState("cannot withdraw a proposal that is " + p.Status)
	}

	ev, err := events.New(ctx, events.AggregateProposal, p.ID.String(), mqcontracts.ProposalStatusChanged, mqcontracts.LifecycleEventPayload{
		ProposalID:  p.ID.String(),
		JobID:       p.JobID.String(),
		EmployerID:  p.EmployerID.String(),
		ApplicantID: p.ApplicantID.String(),
		Status:      model.ProposalWithdrawn,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.proposals.UpdateStatus(ctx, p.ID, p.Status, model.ProposalWithdrawn, []*outbox.Event{ev}); err != nil {
		return nil, s.mapWriteErr(err)
	}
	p.Status = model.ProposalWithdrawn
	return p, nil
}

func (s *Service) ListMine(ctx context.Context, applicantID uuid.UUID) ([]model.Proposal, error) {
	out, err := s.proposals.ListByApplicant(ctx, applicantID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) ListForJob(ctx context.Context, jobID, actor uuid.UUID) ([]model.Proposal, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal(err)
	}
	if job.OwnerID != actor {
		return nil, apperr.Forbidden("only the job owner can view its proposals")
	}
	out, err := s.proposals.ListByJob(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, proposalID, actor uuid.UUID) (*model.Proposal, error) {
	p, err := s.find(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.ApplicantID != actor && p.EmployerID != actor {
		return nil, apperr.Forbidden("not a party to this proposal")
	}
	return p, nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*model.Proposal, error) {
	p, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("proposal not found")
		}
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// mapWriteErr 并发修改导致条件更新落空时返回 Conflict
func (s *Service) mapWriteErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrStale):
		return apperr.Conflict("proposal was modified concurrently, reload and retry")
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("a contract already exists for this proposal")
	}
	return apperr.Internal(err)
}
