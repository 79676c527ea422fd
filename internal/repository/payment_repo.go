package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"careerhub/internal/model"
)

type PGPaymentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPaymentRepository(db *pgxpool.Pool, logger *zap.Logger) *PGPaymentRepository {
	return &PGPaymentRepository{db: db, logger: logger}
}

func (r *PGPaymentRepository) list(ctx context.Context, column string, id uuid.UUID) ([]model.PaymentTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, type, provider, transfer_id, contract_id, milestone_id, contractor_id, employer_id,
		       gross_amount, platform_fee, net_amount, currency, status, created_at
		FROM payment_transactions
		WHERE `+column+` = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	defer rows.Close()

	out := make([]model.PaymentTransaction, 0)
	for rows.Next() {
		var t model.PaymentTransaction
		if err := rows.Scan(
			&t.ID, &t.Type, &t.Provider, &t.TransferID, &t.ContractID, &t.MilestoneID, &t.ContractorID, &t.EmployerID,
			&t.GrossAmount, &t.PlatformFee, &t.NetAmount, &t.Currency, &t.Status, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PGPaymentRepository) ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]model.PaymentTransaction, error) {
	return r.list(ctx, "contractor_id", contractorID)
}

func (r *PGPaymentRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]model.PaymentTransaction, error) {
	return r.list(ctx, "contract_id", contractID)
}
