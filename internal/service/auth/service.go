package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/util"
	"careerhub/pkg/rbac"
)

type Service struct {
	users     repository.UserRepository
	jwtSecret string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(users repository.UserRepository, jwtSecret string, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Register creates a new user on the free tier.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email address")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	u := &model.User{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     hash,
		FullName:         strings.TrimSpace(fullName),
		Role:             model.RoleUser,
		SubscriptionTier: model.TierFree,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.Info("User registered", zap.String("user_id", u.ID.String()))
	return u, nil
}

// Login checks user credentials and returns JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.Unauthenticated("invalid email or password")
		}
		return "", nil, apperr.Internal(err)
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, apperr.Unauthenticated("invalid email or password")
	}

	token, err := util.GenerateJWT(u.ID, u.Role, u.SubscriptionTier, s.jwtSecret, s.ttl, s.now())
	if err != nil {
		return "", nil, apperr.Internal(err)
	}
	return token, u, nil
}

// Authenticate 校验令牌并加载用户，等级以数据库为准
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("missing token")
	}
	claims, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token")
	}
	userID, err := claims.UserUUID()
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token")
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated("user no longer exists")
		}
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// SetTier 由订阅回调或运维命令调用
func (s *Service) SetTier(ctx context.Context, email, tier string) (*model.User, error) {
	switch tier {
	case model.TierFree, model.TierStarter, model.TierPro, model.TierEnterprise:
	default:
		return nil, apperr.Validation("unknown subscription tier " + tier)
	}
	return s.updateUser(ctx, email, func(id uuid.UUID) error {
		return s.users.UpdateTier(ctx, id, tier)
	})
}

func (s *Service) SetRole(ctx context.Context, email, role string) (*model.User, error) {
	if !rbac.ValidRole(role) {
		return nil, apperr.Validation("unknown role " + role)
	}
	return s.updateUser(ctx, email, func(id uuid.UUID) error {
		return s.users.UpdateRole(ctx, id, role)
	})
}

func (s *Service) updateUser(ctx context.Context, email string, update func(id uuid.UUID) error) (*model.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}
	if err := update(u.ID); err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("User updated", zap.String("user_id", u.ID.String()))
	return s.users.FindByID(ctx, u.ID)
}

// TierAllowed 判断等级是否在允许集合中；空集合表示不限制
func TierAllowed(tier string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if strings.EqualFold(t, tier) {
			return true
		}
	}
	return false
}
