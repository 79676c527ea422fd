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

type PGUserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *PGUserRepository {
	return &PGUserRepository{db: db, logger: logger}
}

const userColumns = `id, email, password_hash, full_name, role, subscription_tier, reseller_id, created_at`

// Create inserts a new user.
func (r *PGUserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (id, email, password_hash, full_name, role, subscription_tier, reseller_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	err := otel.WithDBSpan(ctx, "insert", "users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			u.ID, u.Email, u.PasswordHash, u.FullName, u.Role, u.SubscriptionTier, u.ResellerID,
		).Scan(&u.CreatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PGUserRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User
	err := otel.WithDBSpan(ctx, "select", "users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.SubscriptionTier, &u.ResellerID, &u.CreatedAt,
		)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// FindByID returns user by id.
func (r *PGUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByEmail returns user by email.
func (r *PGUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

func (r *PGUserRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET subscription_tier = $2 WHERE id = $1`, id, tier)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
