package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/pkg/otel"
)

type PGConnectAccountRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewConnectAccountRepository(db *pgxpool.Pool, logger *zap.Logger) *PGConnectAccountRepository {
	return &PGConnectAccountRepository{db: db, logger: logger}
}

func (r *PGConnectAccountRepository) Get(ctx context.Context, userID uuid.UUID, provider string) (*model.ConnectAccount, error) {
	var a model.ConnectAccount
	err := otel.WithDBSpan(ctx, "select", "connect_accounts", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			SELECT user_id, provider, account_id, charges_enabled, payouts_enabled, details_submitted, updated_at
			FROM connect_accounts
			WHERE user_id = $1 AND provider = $2
		`, userID, provider).Scan(
			&a.UserID, &a.Provider, &a.AccountID, &a.ChargesEnabled, &a.PayoutsEnabled, &a.DetailsSubmitted, &a.UpdatedAt,
		)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// Upsert 网关是账户状态的权威来源，直接覆盖
func (r *PGConnectAccountRepository) Upsert(ctx context.Context, a *model.ConnectAccount) error {
	err := otel.WithDBSpan(ctx, "upsert", "connect_accounts", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			INSERT INTO connect_accounts (user_id, provider, account_id, charges_enabled, payouts_enabled, details_submitted)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, provider) DO UPDATE
			SET account_id = EXCLUDED.account_id,
			    charges_enabled = EXCLUDED.charges_enabled,
			    payouts_enabled = EXCLUDED.payouts_enabled,
			    details_submitted = EXCLUDED.details_submitted,
			    updated_at = NOW()
			RETURNING updated_at
		`, a.UserID, a.Provider, a.AccountID, a.ChargesEnabled, a.PayoutsEnabled, a.DetailsSubmitted).Scan(&a.UpdatedAt)
	})
	if err != nil {
		r.logger.Error("Failed to upsert connect account",
			zap.String("user_id", a.UserID.String()),
			zap.String("provider", a.Provider),
			zap.Error(err),
		)
		return fmt.Errorf("upsert connect account: %w", err)
	}
	return nil
}

type PGResellerRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewResellerRepository(db *pgxpool.Pool, logger *zap.Logger) *PGResellerRepository {
	return &PGResellerRepository{db: db, logger: logger}
}

func (r *PGResellerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Reseller, error) {
	var rs model.Reseller
	err := r.db.QueryRow(ctx, `
		SELECT id, name, stripe_secret_key, yoco_secret_key FROM resellers WHERE id = $1
	`, id).Scan(&rs.ID, &rs.Name, &rs.StripeSecretKey, &rs.YocoSecretKey)
	if err != nil {
		return nil, notFound(err)
	}
	return &rs, nil
}

func (r *PGResellerRepository) Create(ctx context.Context, rs *model.Reseller) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO resellers (id, name, stripe_secret_key, yoco_secret_key) VALUES ($1, $2, $3, $4)
	`, rs.ID, rs.Name, rs.StripeSecretKey, rs.YocoSecretKey)
	if err != nil {
		return fmt.Errorf("insert reseller: %w", err)
	}
	return nil
}

type PGSettingsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSettingsRepository(db *pgxpool.Pool, logger *zap.Logger) *PGSettingsRepository {
	return &PGSettingsRepository{db: db, logger: logger}
}

func (r *PGSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM platform_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", notFound(err)
	}
	return value, nil
}

func (r *PGSettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO platform_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	r.logger.Info("Platform setting updated", zap.String("key", key))
	return nil
}

func (r *PGSettingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM platform_settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
