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

type PGContractRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewContractRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *PGContractRepository {
	return &PGContractRepository{db: db, outbox: outboxRepo, logger: logger}
}

const contractColumns = `id, proposal_id, employer_id, contractor_id, title, currency, total_paid, status,
	contractor_signed_at, created_at, updated_at`

const milestoneColumns = `id, contract_id, position, title, amount, status, escrow_status, funding_provider,
	funding_reference, funded_at, payout_claimed_at, transfer_id, paid_at, updated_at`

func scanContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	err := row.Scan(
		&c.ID, &c.ProposalID, &c.EmployerID, &c.ContractorID, &c.Title, &c.Currency, &c.TotalPaid, &c.Status,
		&c.ContractorSignedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID, &m.ContractID, &m.Position, &m.Title, &m.Amount, &m.Status, &m.EscrowStatus, &m.FundingProvider,
		&m.FundingReference, &m.FundedAt, &m.PayoutClaimedAt, &m.TransferID, &m.PaidAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// insertContract 插入合同与里程碑，调用方负责事务
func insertContract(ctx context.Context, tx pgx.Tx, c *model.Contract) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO contracts (id, proposal_id, employer_id, contractor_id, title, currency, status, contractor_signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, c.ID, c.ProposalID, c.EmployerID, c.ContractorID, c.Title, c.Currency, c.Status, c.ContractorSignedAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range c.Milestones {
		m := &c.Milestones[i]
		m.ContractID = c.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO milestones (id, contract_id, position, title, amount, status, escrow_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING updated_at
		`, m.ID, m.ContractID, m.Position, m.Title, m.Amount, m.Status, m.EscrowStatus).Scan(&m.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PGContractRepository) Create(ctx context.Context, c *model.Contract, events []*outbox.Event) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertContract(ctx, tx, c); err != nil {
			return err
		}
		return outbox.InsertEventsInTx(ctx, tx, r.outbox, events)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert contract", zap.Error(err))
		return fmt.Errorf("insert contract: %w", err)
	}

	r.logger.Info("Contract created",
		zap.String("contract_id", c.ID.String()),
		zap.String("status", c.Status),
		zap.Int("milestones", len(c.Milestones)),
	)
	return nil
}

// loadMilestones 批量加载里程碑并挂到对应合同
func (r *PGContractRepository) loadMilestones(ctx context.Context, contracts []*model.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(contracts))
	byID := make(map[uuid.UUID]*model.Contract, len(contracts))
	for i, c := range contracts {
		ids[i] = c.ID
		byID[c.ID] = c
		c.Milestones = make([]model.Milestone, 0)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE contract_id = ANY($1)
		ORDER BY contract_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load milestones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return err
		}
		if c, ok := byID[m.ContractID]; ok {
			c.Milestones = append(c.Milestones, *m)
		}
	}
	return rows.Err()
}

func (r *PGContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var c *model.Contract
	err := otel.WithDBSpan(ctx, "select", "contracts", func(ctx context.Context) error {
		var err error
		c, err = scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
		if err != nil {
			return err
		}
		return r.loadMilestones(ctx, []*model.Contract{c})
	})
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *PGContractRepository) ListByParty(ctx context.Context, userID uuid.UUID) ([]model.Contract, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE employer_id = $1 OR contractor_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	var ptrs []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadMilestones(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]model.Contract, 0, len(ptrs))
	for _, c := range ptrs {
		out = append(out, *c)
	}
	return out, nil
}

// execWithEvents 执行单条条件更新并写入 outbox，未命中返回 ErrStale
func (r *PGContractRepository) execWithEvents(ctx context.Context, op string, events []*outbox.Event, query string, args ...any) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if err := expectOne(tag); err != nil {
			return err
		}
		return outbox.InsertEventsInTx(ctx, tx, r.outbox, events)
	})
	if err != nil {
		if errors.Is(err, ErrStale) {
			r.logger.Debug("Conditional update missed", zap.String("op", op))
			return err
		}
		r.logger.Error("Contract update failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PGContractRepository) Sign(ctx context.Context, id, contractorID uuid.UUID, events []*outbox.Event) error {
	return r.execWithEvents(ctx, "sign contract", events, `
		UPDATE contracts
		SET contractor_signed_at = NOW(),
		    status = CASE WHEN status = 'draft' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND contractor_id = $2
		  AND contractor_signed_at IS NULL
		  AND status IN ('draft', 'active')
	`, id, contractorID)
}

func (r *PGContractRepository) Cancel(ctx context.Context, id uuid.UUID, events []*outbox.Event) error {
	return r.execWithEvents(ctx, "cancel contract", events, `
		UPDATE contracts SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('draft', 'active')
		  AND NOT EXISTS (
		      SELECT 1 FROM milestones
		      WHERE contract_id = $1
		        AND (escrow_status = 'funded' OR (escrow_status = 'unfunded' AND funding_reference <> ''))
		  )
	`, id)
}

func (r *PGContractRepository) Complete(ctx context.Context, id uuid.UUID, events []*outbox.Event) error {
	return r.execWithEvents(ctx, "complete contract", events, `
		UPDATE contracts SET status = 'completed', updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND EXISTS (SELECT 1 FROM milestones WHERE contract_id = $1)
		  AND NOT EXISTS (
		      SELECT 1 FROM milestones WHERE contract_id = $1 AND status <> 'paid'
		  )
	`, id)
}

// AddMilestone 追加到末尾，合同须为 draft/active
func (r *PGContractRepository) AddMilestone(ctx context.Context, m *model.Milestone) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO milestones (id, contract_id, position, title, amount, status, escrow_status)
		SELECT $1, c.id,
		       COALESCE((SELECT MAX(position) FROM milestones WHERE contract_id = c.id), 0) + 1,
		       $3, $4, $5, $6
		FROM contracts c
		WHERE c.id = $2 AND c.status IN ('draft', 'active')
		RETURNING position, updated_at
	`, m.ID, m.ContractID, m.Title, m.Amount, m.Status, m.EscrowStatus).Scan(&m.Position, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStale
		}
		if isUniqueViolation(err) {
			return ErrStale
		}
		return fmt.Errorf("add milestone: %w", err)
	}
	return nil
}

func (r *PGContractRepository) TransitionMilestone(ctx context.Context, contractID, milestoneID uuid.UUID, from, to string, events []*outbox.Event) error {
	return r.execWithEvents(ctx, "transition milestone", events, `
		UPDATE milestones m SET status = $4, updated_at = NOW()
		FROM contracts c
		WHERE m.id = $2 AND m.contract_id = $1
		  AND c.id = m.contract_id AND c.status = 'active'
		  AND m.status = $3
	`, contractID, milestoneID, from, to)
}

// StartFunding 记录最新 checkout，并登记到 milestone_checkouts 供 webhook 反查
func (r *PGContractRepository) StartFunding(ctx context.Context, contractID, milestoneID uuid.UUID, provider, reference string) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE milestones SET funding_provider = $3, funding_reference = $4, updated_at = NOW()
			WHERE id = $2 AND contract_id = $1 AND escrow_status = 'unfunded'
		`, contractID, milestoneID, provider, reference)
		if err != nil {
			return err
		}
		if err := expectOne(tag); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO milestone_checkouts (provider, reference, contract_id, milestone_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, reference) DO NOTHING
		`, provider, reference, contractID, milestoneID)
		return err
	})
	if err != nil && !errors.Is(err, ErrStale) {
		return fmt.Errorf("start funding: %w", err)
	}
	return err
}

func (r *PGContractRepository) FindByFundingReference(ctx context.Context, provider, reference string) (*model.Contract, *model.Milestone, error) {
	var contractID, milestoneID uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT contract_id, milestone_id FROM milestone_checkouts
		WHERE provider = $1 AND reference = $2
	`, provider, reference).Scan(&contractID, &milestoneID)
	if err != nil {
		return nil, nil, notFound(err)
	}

	c, err := r.FindByID(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	m, ok := c.Milestone(milestoneID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return c, m, nil
}

// ConfirmFunding 任一登记过的 checkout 均可确认，确认后 funding_* 指向实际支付的那笔
func (r *PGContractRepository) ConfirmFunding(ctx context.Context, contractID, milestoneID uuid.UUID, provider, reference string, events []*outbox.Event) error {
	err := r.execWithEvents(ctx, "confirm funding", events, `
		UPDATE milestones
		SET escrow_status = 'funded', funding_provider = $3, funding_reference = $4,
		    funded_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND contract_id = $1
		  AND escrow_status = 'unfunded'
		  AND EXISTS (
		      SELECT 1 FROM milestone_checkouts
		      WHERE provider = $3 AND reference = $4 AND milestone_id = $2
		  )
	`, contractID, milestoneID, provider, reference)
	if err == nil {
		r.logger.Info("Milestone funded",
			zap.String("contract_id", contractID.String()),
			zap.String("milestone_id", milestoneID.String()),
			zap.String("provider", provider),
		)
	}
	return err
}

func (r *PGContractRepository) ClaimPayout(ctx context.Context, contractID, milestoneID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE milestones SET payout_claimed_at = NOW()
		WHERE id = $2 AND contract_id = $1
		  AND status = 'approved'
		  AND escrow_status = 'funded'
		  AND (payout_claimed_at IS NULL OR payout_claimed_at < NOW() - make_interval(secs => $3))
	`, contractID, milestoneID, PayoutClaimTTL.Seconds())
	if err != nil {
		return fmt.Errorf("claim payout: %w", err)
	}
	return expectOne(tag)
}

func (r *PGContractRepository) ReleasePayoutClaim(ctx context.Context, contractID, milestoneID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE milestones SET payout_claimed_at = NULL
		WHERE id = $2 AND contract_id = $1 AND status <> 'paid'
	`, contractID, milestoneID)
	if err != nil {
		return fmt.Errorf("release payout claim: %w", err)
	}
	return nil
}

// CompletePayout 里程碑状态、付款流水、合同累计金额与事件一起提交
func (r *PGContractRepository) CompletePayout(ctx context.Context, ptx *model.PaymentTransaction, events []*outbox.Event) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE milestones
			SET status = 'paid', escrow_status = 'released', transfer_id = $3,
			    paid_at = NOW(), payout_claimed_at = NULL, updated_at = NOW()
			WHERE id = $2 AND contract_id = $1
			  AND status = 'approved' AND escrow_status = 'funded'
		`, ptx.ContractID, ptx.MilestoneID, ptx.TransferID)
		if err != nil {
			return err
		}
		if err := expectOne(tag); err != nil {
			return err
		}

		err = otel.WithDBSpan(ctx, "insert", "payment_transactions", func(ctx context.Context) error {
			return tx.QueryRow(ctx, `
				INSERT INTO payment_transactions (id, type, provider, transfer_id, contract_id, milestone_id,
				    contractor_id, employer_id, gross_amount, platform_fee, net_amount, currency, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				RETURNING created_at
			`, ptx.ID, ptx.Type, ptx.Provider, ptx.TransferID, ptx.ContractID, ptx.MilestoneID,
				ptx.ContractorID, ptx.EmployerID, ptx.GrossAmount, ptx.PlatformFee, ptx.NetAmount,
				ptx.Currency, ptx.Status,
			).Scan(&ptx.CreatedAt)
		})
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE contracts SET total_paid = total_paid + $2, updated_at = NOW() WHERE id = $1
		`, ptx.ContractID, ptx.GrossAmount); err != nil {
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
		r.logger.Error("Failed to record payout",
			zap.String("milestone_id", ptx.MilestoneID.String()),
			zap.String("transfer_id", ptx.TransferID),
			zap.Error(err),
		)
		return fmt.Errorf("complete payout: %w", err)
	}
	return nil
}
