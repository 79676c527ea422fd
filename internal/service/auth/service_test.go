package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository/memory"
)

func newService() *Service {
	return NewService(memory.NewStore().Users, "test-secret", time.Hour, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newService()

	u, err := s.Register(ctx, "Dev@Example.com", "password1", "Dev")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", u.Email)
	assert.Equal(t, model.TierFree, u.SubscriptionTier)

	token, got, err := s.Login(ctx, "dev@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	authed, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, authed.ID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := newService()
	_, err := s.Register(ctx, "a@example.com", "password1", "")
	require.NoError(t, err)

	_, err = s.Register(ctx, "a@example.com", "password2", "")
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	s := newService()
	_, err := s.Register(ctx, "a@example.com", "password1", "")
	require.NoError(t, err)

	_, _, err = s.Login(ctx, "a@example.com", "nope-nope")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthenticated))
}

func TestAuthenticate_BadToken(t *testing.T) {
	_, err := newService().Authenticate(context.Background(), "not-a-token")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthenticated))
}

func TestTierAllowed(t *testing.T) {
	assert.True(t, TierAllowed("free", nil))
	assert.True(t, TierAllowed("pro", []string{"starter", "pro"}))
	assert.False(t, TierAllowed("free", []string{"starter", "pro"}))
}

func TestSetTierAndRole(t *testing.T) {
	s := newService()
	ctx := context.Background()
	_, err := s.Register(ctx, "ops@example.com", "password123", "Ops")
	require.NoError(t, err)

	u, err := s.SetTier(ctx, "OPS@example.com", model.TierPro)
	require.NoError(t, err)
	assert.Equal(t, model.TierPro, u.SubscriptionTier)

	u, err = s.SetRole(ctx, "ops@example.com", model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	_, err = s.SetTier(ctx, "ops@example.com", "platinum")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	_, err = s.SetRole(ctx, "nobody@example.com", model.RoleAdmin)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
