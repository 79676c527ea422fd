package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/pkg/otel"
	"careerhub/pkg/outbox"
)

type PGProposalRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewProposalRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *PGProposalRepository {
	return &PGProposalRepository{db: db, outbox: outboxRepo, logger: logger}
}

const proposalColumns = `id, job_id, applicant_id, employer_id, cover_letter, proposed_rate, rate_type,
	currency, availability, status, created_at, updated_at`

func scanProposal(row pgx.Row) (*model.Proposal, error) {
	var p model.Proposal
	err := row.Scan(
		&p.ID, &p.JobID, &p.ApplicantID, &p.EmployerID, &p.CoverLetter, &p.ProposedRate, &p.RateType,
		&p.Currency, &p.Availability, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create 插入提案，同一事务写 outbox
func (r *PGProposalRepository) Create(ctx context.Context, p *model.Proposal, events []*outbox.Event) error {
	r.logger.Debug("Inserting proposal",
		zap.String("job_id", p.JobID.String()),
		zap.String("applicant_id", p.ApplicantID.String()),
	)

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		err := otel.WithDBSpan(ctx, "insert", "proposals", func(ctx context.Context) error {
			return tx.QueryRow(ctx, `
				INSERT INTO proposals (id, job_id, applicant_id, employer_id, cover_letter, proposed_rate,
				                       rate_type, currency, availability, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING created_at, updated_at
			`, p.ID, p.JobID, p.ApplicantID, p.EmployerID, p.CoverLetter, p.ProposedRate,
				p.RateType, p.Currency, p.Availability, p.Status,
			).Scan(&p.CreatedAt, &p.UpdatedAt)
		})
		if err != nil {
			return err
		}
		return outbox.InsertEventsInTx(ctx, tx, r.outbox, events)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert proposal", zap.Error(err))
		return fmt.Errorf("insert proposal: %w", err)
	}

	r.logger.Info("Proposal submitted",
		zap.String("proposal_id", p.ID.String()),
		zap.String("job_id", p.JobID.String()),
	)
	return nil
}

func (r *PGProposalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Proposal, error) {
	var p *model.Proposal
	err := otel.WithDBSpan(ctx, "select", "proposals", func(ctx context.Context) error {
		var err error
		p, err = scanProposal(r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PGProposalRepository) list(ctx context.Context, where string, arg any) ([]model.Proposal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	out := make([]model.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PGProposalRepository) ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]model.Proposal, error) {
	return r.list(ctx, "applicant_id = $1", applicantID)
}

func (r *PGProposalRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]model.Proposal, error) {
	return r.list(ctx, "job_id = $1", jobID)
}

func updateProposalStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE proposals SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	return expectOne(tag)
}

// UpdateStatus 条件更新，状态已变化返回 ErrStale
func (r *PGProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, events []*outbox.Event) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := updateProposalStatus(ctx, tx, id, from, to); err != nil {
			return err
		}
		return outbox.InsertEventsInTx(ctx, tx, r.outbox, events)
	})
	if err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update proposal status: %w", err)
	}

	r.logger.Info("Proposal status changed",
		zap.String("proposal_id", id.String()),
		zap.String("from", from),
		zap.String("to", to),
	)
	return nil
}

// Accept 接受提案与创建合同在同一事务内
func (r *PGProposalRepository) Accept(ctx context.Context, id uuid.UUID, from string, c *model.Contract, events []*outbox.Event) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := updateProposalStatus(ctx, tx, id, from, model.ProposalAccepted); err != nil {
			return err
		}
		if err := insertContract(ctx, tx, c); err != nil {
			return err
		}
		return outbox.InsertEventsInTx(ctx, tx, r.outbox, events)
	})
	if err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to accept proposal",
			zap.String("proposal_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("accept proposal: %w", err)
	}

	r.logger.Info("Proposal accepted",
		zap.String("proposal_id", id.String()),
		zap.String("contract_id", c.ID.String()),
	)
	return nil
}
