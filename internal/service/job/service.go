package job

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/validation"
)

type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=20000"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	Budget      int64  `json:"budget" validate:"gte=0"`
}

type Service struct {
	jobs   repository.JobRepository
	logger *zap.Logger
}

func NewService(jobs repository.JobRepository, logger *zap.Logger) *Service {
	return &Service{jobs: jobs, logger: logger}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*model.Job, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	j := &model.Job{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		Currency:    in.Currency,
		Budget:      in.Budget,
		Status:      model.JobStatusOpen,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("Job posted", zap.String("job_id", j.ID.String()), zap.String("owner_id", ownerID.String()))
	return j, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	j, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal(err)
	}
	return j, nil
}

func (s *Service) ListOpen(ctx context.Context, limit, offset int) ([]model.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	jobs, err := s.jobs.ListOpen(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return jobs, nil
}

// Close 仅发布者可关闭
func (s *Service) Close(ctx context.Context, id, actor uuid.UUID) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.OwnerID != actor {
		return apperr.Forbidden("only the job owner can close this job")
	}
	if err := s.jobs.Close(ctx, id, actor); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return apperr.InvalidState("job is already closed")
		}
		return apperr.Internal(err)
	}
	return nil
}
