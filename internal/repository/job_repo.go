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

type PGJobRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewJobRepository(db *pgxpool.Pool, logger *zap.Logger) *PGJobRepository {
	return &PGJobRepository{db: db, logger: logger}
}

const jobColumns = `id, owner_id, title, description, currency, budget, status, created_at`

func (r *PGJobRepository) Create(ctx context.Context, j *model.Job) error {
	r.logger.Debug("Inserting job",
		zap.String("owner_id", j.OwnerID.String()),
		zap.String("title", j.Title),
	)
	err := otel.WithDBSpan(ctx, "insert", "jobs", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			INSERT INTO jobs (id, owner_id, title, description, currency, budget, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, j.ID, j.OwnerID, j.Title, j.Description, j.Currency, j.Budget, j.Status).Scan(&j.CreatedAt)
	})
	if err != nil {
		r.logger.Error("Failed to insert job", zap.Error(err))
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PGJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	err := otel.WithDBSpan(ctx, "select", "jobs", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id).Scan(
			&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.Currency, &j.Budget, &j.Status, &j.CreatedAt,
		)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

func (r *PGJobRepository) ListOpen(ctx context.Context, limit, offset int) ([]model.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.Currency, &j.Budget, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PGJobRepository) Close(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = 'closed' WHERE id = $1 AND owner_id = $2 AND status = 'open'
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("close job: %w", err)
	}
	return expectOne(tag)
}
