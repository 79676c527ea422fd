package mq

import "time"

// Routing keys published through the outbox.
const (
	ProposalSubmitted     = "proposal.submitted"
	ProposalStatusChanged = "proposal.status_changed"
	ProposalAccepted      = "proposal.accepted"
	ContractCreated       = "contract.created"
	ContractSigned        = "contract.signed"
	ContractCancelled     = "contract.cancelled"
	ContractCompleted     = "contract.completed"
	MilestoneSubmitted    = "milestone.submitted"
	MilestoneApproved     = "milestone.approved"
	MilestoneFunded       = "milestone.funded"
	PaymentReleased       = "payment.released"
)

// FanoutBindings 通知扇出队列绑定的 routing key
var FanoutBindings = []string{"proposal.*", "contract.*", "milestone.*", "payment.*"}

// LifecycleEventPayload is the single envelope for all lifecycle events.
// Fields irrelevant to a given Type are left empty.
type LifecycleEventPayload struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	ProposalID   string `json:"proposal_id,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	ContractID   string `json:"contract_id,omitempty"`
	MilestoneID  string `json:"milestone_id,omitempty"`
	Title        string `json:"title,omitempty"`
	EmployerID   string `json:"employer_id,omitempty"`
	ContractorID string `json:"contractor_id,omitempty"`
	ApplicantID  string `json:"applicant_id,omitempty"`
	Status       string `json:"status,omitempty"`

	Provider    string `json:"provider,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	PlatformFee int64  `json:"platform_fee,omitempty"`
	NetAmount   int64  `json:"net_amount,omitempty"`
	TransferID  string `json:"transfer_id,omitempty"`
}
