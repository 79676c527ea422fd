package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/pkg/outbox"
)

// ---- proposals ----

type proposalRepo struct{ s *state }

// liveDuplicate 调用方须持有锁
func (s *state) liveDuplicate(p *model.Proposal) bool {
	for _, other := range s.proposals {
		if other.ID != p.ID && other.JobID == p.JobID && other.ApplicantID == p.ApplicantID &&
			other.Status != model.ProposalWithdrawn {
			return true
		}
	}
	return false
}

func (r *proposalRepo) Create(_ context.Context, p *model.Proposal, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.liveDuplicate(p) {
		return repository.ErrDuplicate
	}
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.s.proposals[p.ID] = &cp
	r.s.appendEvents(events)
	return nil
}

func (r *proposalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Proposal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.proposals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *proposalRepo) list(match func(*model.Proposal) bool) []model.Proposal {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Proposal, 0)
	for _, p := range r.s.proposals {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (r *proposalRepo) ListByApplicant(_ context.Context, applicantID uuid.UUID) ([]model.Proposal, error) {
	return r.list(func(p *model.Proposal) bool { return p.ApplicantID == applicantID }), nil
}

func (r *proposalRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]model.Proposal, error) {
	return r.list(func(p *model.Proposal) bool { return p.JobID == jobID }), nil
}

// transitionProposal 调用方须持有锁
func (s *state) transitionProposal(id uuid.UUID, from, to string) (*model.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok || p.Status != from {
		return nil, repository.ErrStale
	}
	return p, nil
}

func (r *proposalRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.s.transitionProposal(id, from, to)
	if err != nil {
		return err
	}
	p.Status = to
	p.UpdatedAt = r.s.now()
	r.s.appendEvents(events)
	return nil
}

func (r *proposalRepo) Accept(_ context.Context, id uuid.UUID, from string, c *model.Contract, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.s.transitionProposal(id, from, model.ProposalAccepted)
	if err != nil {
		return err
	}
	if err := r.s.insertContract(c); err != nil {
		return err
	}
	p.Status = model.ProposalAccepted
	p.UpdatedAt = r.s.now()
	r.s.appendEvents(events)
	return nil
}

// ---- contracts ----

type contractRepo struct{ s *state }

// insertContract 调用方须持有锁
func (s *state) insertContract(c *model.Contract) error {
	if _, ok := s.contracts[c.ID]; ok {
		return repository.ErrDuplicate
	}
	if c.ProposalID != nil {
		for _, other := range s.contracts {
			if other.ProposalID != nil && *other.ProposalID == *c.ProposalID {
				return repository.ErrDuplicate
			}
		}
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	for i := range c.Milestones {
		c.Milestones[i].ContractID = c.ID
		c.Milestones[i].UpdatedAt = now
	}
	s.contracts[c.ID] = copyContract(c)
	return nil
}

func (r *contractRepo) Create(_ context.Context, c *model.Contract, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.insertContract(c); err != nil {
		return err
	}
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyContract(c), nil
}

func (r *contractRepo) ListByParty(_ context.Context, userID uuid.UUID) ([]model.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Contract, 0)
	for _, c := range r.s.contracts {
		if c.IsParty(userID) {
			out = append(out, *copyContract(c))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (r *contractRepo) Sign(_ context.Context, id, contractorID uuid.UUID, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[id]
	if !ok || c.ContractorID != contractorID || c.ContractorSignedAt != nil ||
		(c.Status != model.ContractDraft && c.Status != model.ContractActive) {
		return repository.ErrStale
	}
	now := r.s.now()
	c.ContractorSignedAt = &now
	c.Status = model.ContractActive
	c.UpdatedAt = now
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) Cancel(_ context.Context, id uuid.UUID, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[id]
	if !ok || (c.Status != model.ContractDraft && c.Status != model.ContractActive) || c.HasFundedEscrow() || c.HasOpenCheckout() {
		return repository.ErrStale
	}
	c.Status = model.ContractCancelled
	c.UpdatedAt = r.s.now()
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) Complete(_ context.Context, id uuid.UUID, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[id]
	if !ok || c.Status != model.ContractActive || !c.AllMilestonesPaid() {
		return repository.ErrStale
	}
	c.Status = model.ContractCompleted
	c.UpdatedAt = r.s.now()
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) AddMilestone(_ context.Context, m *model.Milestone) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[m.ContractID]
	if !ok || (c.Status != model.ContractDraft && c.Status != model.ContractActive) {
		return repository.ErrStale
	}
	pos := 0
	for _, existing := range c.Milestones {
		if existing.Position > pos {
			pos = existing.Position
		}
	}
	m.Position = pos + 1
	m.UpdatedAt = r.s.now()
	c.Milestones = append(c.Milestones, *m)
	return nil
}

// milestone 调用方须持有锁
func (s *state) milestone(contractID, milestoneID uuid.UUID) (*model.Contract, *model.Milestone, bool) {
	c, ok := s.contracts[contractID]
	if !ok {
		return nil, nil, false
	}
	m, ok := c.Milestone(milestoneID)
	return c, m, ok
}

func (r *contractRepo) TransitionMilestone(_ context.Context, contractID, milestoneID uuid.UUID, from, to string, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, m, ok := r.s.milestone(contractID, milestoneID)
	if !ok || c.Status != model.ContractActive || m.Status != from {
		return repository.ErrStale
	}
	m.Status = to
	m.UpdatedAt = r.s.now()
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) StartFunding(_ context.Context, contractID, milestoneID uuid.UUID, provider, reference string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, m, ok := r.s.milestone(contractID, milestoneID)
	if !ok || m.EscrowStatus != model.EscrowUnfunded {
		return repository.ErrStale
	}
	m.FundingProvider = provider
	m.FundingReference = reference
	m.UpdatedAt = r.s.now()
	key := checkoutKey{provider: provider, reference: reference}
	if _, exists := r.s.checkouts[key]; !exists {
		r.s.checkouts[key] = checkoutRef{contractID: contractID, milestoneID: milestoneID}
	}
	return nil
}

func (r *contractRepo) FindByFundingReference(_ context.Context, provider, reference string) (*model.Contract, *model.Milestone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ref, ok := r.s.checkouts[checkoutKey{provider: provider, reference: reference}]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	c, ok := r.s.contracts[ref.contractID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	cp := copyContract(c)
	ms, ok := cp.Milestone(ref.milestoneID)
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	return cp, ms, nil
}

func (r *contractRepo) ConfirmFunding(_ context.Context, contractID, milestoneID uuid.UUID, provider, reference string, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, m, ok := r.s.milestone(contractID, milestoneID)
	if !ok || m.EscrowStatus != model.EscrowUnfunded {
		return repository.ErrStale
	}
	ref, ok := r.s.checkouts[checkoutKey{provider: provider, reference: reference}]
	if !ok || ref.milestoneID != milestoneID {
		return repository.ErrStale
	}
	now := r.s.now()
	m.EscrowStatus = model.EscrowFunded
	m.FundingProvider = provider
	m.FundingReference = reference
	m.FundedAt = &now
	m.UpdatedAt = now
	r.s.appendEvents(events)
	return nil
}

func (r *contractRepo) ClaimPayout(_ context.Context, contractID, milestoneID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, m, ok := r.s.milestone(contractID, milestoneID)
	if !ok || m.Status != model.MilestoneApproved || m.EscrowStatus != model.EscrowFunded {
		return repository.ErrStale
	}
	now := r.s.now()
	if m.PayoutClaimedAt != nil && now.Sub(*m.PayoutClaimedAt) < repository.PayoutClaimTTL {
		return repository.ErrStale
	}
	m.PayoutClaimedAt = &now
	return nil
}

func (r *contractRepo) ReleasePayoutClaim(_ context.Context, contractID, milestoneID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, m, ok := r.s.milestone(contractID, milestoneID)
	if ok && m.Status != model.MilestonePaid {
		m.PayoutClaimedAt = nil
	}
	return nil
}

func (r *contractRepo) CompletePayout(_ context.Context, tx *model.PaymentTransaction, events []*outbox.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, m, ok := r.s.milestone(tx.ContractID, tx.MilestoneID)
	if !ok || m.Status != model.MilestoneApproved || m.EscrowStatus != model.EscrowFunded {
		return repository.ErrStale
	}
	for _, existing := range r.s.transactions {
		if existing.MilestoneID == tx.MilestoneID && existing.Type == model.TransactionMilestonePayout {
			return repository.ErrDuplicate
		}
	}

	now := r.s.now()
	m.Status = model.MilestonePaid
	m.EscrowStatus = model.EscrowReleased
	m.TransferID = tx.TransferID
	m.PaidAt = &now
	m.PayoutClaimedAt = nil
	m.UpdatedAt = now
	c.TotalPaid += tx.GrossAmount
	c.UpdatedAt = now

	tx.CreatedAt = now
	cp := *tx
	r.s.transactions = append(r.s.transactions, &cp)
	r.s.appendEvents(events)
	return nil
}

// ---- payments ----

type paymentRepo struct{ s *state }

func (r *paymentRepo) list(match func(*model.PaymentTransaction) bool) []model.PaymentTransaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.PaymentTransaction, 0)
	for i := len(r.s.transactions) - 1; i >= 0; i-- {
		if t := r.s.transactions[i]; match(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (r *paymentRepo) ListByContractor(_ context.Context, contractorID uuid.UUID) ([]model.PaymentTransaction, error) {
	return r.list(func(t *model.PaymentTransaction) bool { return t.ContractorID == contractorID }), nil
}

func (r *paymentRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]model.PaymentTransaction, error) {
	return r.list(func(t *model.PaymentTransaction) bool { return t.ContractID == contractID }), nil
}
