package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ContractDraft     = "draft"
	ContractActive    = "active"
	ContractCompleted = "completed"
	ContractCancelled = "cancelled"
)

// milestone.status
const (
	MilestonePending   = "pending"
	MilestoneSubmitted = "submitted"
	MilestoneApproved  = "approved"
	MilestonePaid      = "paid"
)

// milestone.escrow_status
const (
	EscrowUnfunded = "unfunded"
	EscrowFunded   = "funded"
	EscrowReleased = "released"
)

type Contract struct {
	ID                 uuid.UUID   `json:"id"`
	ProposalID         *uuid.UUID  `json:"proposal_id,omitempty"`
	EmployerID         uuid.UUID   `json:"employer_id"`
	ContractorID       uuid.UUID   `json:"contractor_id"`
	Title              string      `json:"title"`
	Currency           string      `json:"currency"`
	TotalPaid          int64       `json:"total_paid"`
	Status             string      `json:"status"`
	ContractorSignedAt *time.Time  `json:"contractor_signed_at,omitempty"`
	Milestones         []Milestone `json:"milestones"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// IsParty 判断用户是否为合同一方
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return c.EmployerID == userID || c.ContractorID == userID
}

// Milestone 查找里程碑
func (c *Contract) Milestone(id uuid.UUID) (*Milestone, bool) {
	for i := range c.Milestones {
		if c.Milestones[i].ID == id {
			return &c.Milestones[i], true
		}
	}
	return nil, false
}

// AllMilestonesPaid 所有里程碑均已付款（且至少有一个）
func (c *Contract) AllMilestonesPaid() bool {
	if len(c.Milestones) == 0 {
		return false
	}
	for _, m := range c.Milestones {
		if m.Status != MilestonePaid {
			return false
		}
	}
	return true
}

// HasFundedEscrow 是否有资金仍托管在平台
func (c *Contract) HasFundedEscrow() bool {
	for _, m := range c.Milestones {
		if m.EscrowStatus == EscrowFunded {
			return true
		}
	}
	return false
}

// HasOpenCheckout 是否有已发起、尚未确认的 checkout
func (c *Contract) HasOpenCheckout() bool {
	for _, m := range c.Milestones {
		if m.EscrowStatus == EscrowUnfunded && m.FundingReference != "" {
			return true
		}
	}
	return false
}

type Milestone struct {
	ID               uuid.UUID  `json:"id"`
	ContractID       uuid.UUID  `json:"contract_id"`
	Position         int        `json:"position"`
	Title            string     `json:"title"`
	Amount           int64      `json:"amount"`
	Status           string     `json:"status"`
	EscrowStatus     string     `json:"escrow_status"`
	FundingProvider  string     `json:"funding_provider,omitempty"`
	FundingReference string     `json:"funding_reference,omitempty"`
	FundedAt         *time.Time `json:"funded_at,omitempty"`
	PayoutClaimedAt  *time.Time `json:"-"`
	TransferID       string     `json:"transfer_id,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
