package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProposalPending     = "pending"
	ProposalShortlisted = "shortlisted"
	ProposalRejected    = "rejected"
	ProposalAccepted    = "accepted"
	ProposalWithdrawn   = "withdrawn"
)

const (
	RateFixed  = "fixed"
	RateHourly = "hourly"
)

type Proposal struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"job_id"`
	ApplicantID  uuid.UUID `json:"applicant_id"`
	EmployerID   uuid.UUID `json:"employer_id"`
	CoverLetter  string    `json:"cover_letter"`
	ProposedRate int64     `json:"proposed_rate"`
	RateType     string    `json:"rate_type"`
	Currency     string    `json:"currency"`
	Availability string    `json:"availability"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
