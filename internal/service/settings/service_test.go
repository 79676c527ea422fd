package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository/memory"
)

func TestPaymentsDefaults(t *testing.T) {
	svc := NewService(memory.NewStore().Settings, zap.NewNop())
	got, err := svc.Payments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ProviderStripe, got.DefaultProvider)
	assert.False(t, got.StripeConfigured)
	assert.False(t, got.YocoConfigured)
}

func TestUpdatePayments(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Settings, zap.NewNop())

	provider, key := " YOCO ", "sk_live_x"
	got, err := svc.UpdatePayments(ctx, UpdateInput{DefaultProvider: &provider, YocoSecretKey: &key})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderYoco, got.DefaultProvider)
	assert.True(t, got.YocoConfigured)
	assert.False(t, got.StripeConfigured)

	stored, err := store.Settings.Get(ctx, model.SettingYocoSecretKey)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_x", stored)

	_, err = svc.SetDefaultProvider(ctx, "paypal")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestSetDefaultProvider(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Settings, zap.NewNop())

	got, err := svc.SetDefaultProvider(ctx, "yoco")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderYoco, got.DefaultProvider)

	stored, err := store.Settings.Get(ctx, model.SettingDefaultProvider)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderYoco, stored)
}
