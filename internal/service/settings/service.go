// Package settings 平台支付设置，仅管理员可修改
package settings

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/validation"
)

// PaymentSettings 对外展示，不返回密钥本身
type PaymentSettings struct {
	DefaultProvider  string `json:"default_provider"`
	StripeConfigured bool   `json:"stripe_configured"`
	YocoConfigured   bool   `json:"yoco_configured"`
}

// UpdateInput 字段为 nil 表示不修改；密钥传空串表示清除
type UpdateInput struct {
	DefaultProvider *string `json:"default_provider" validate:"omitempty,provider"`
	StripeSecretKey *string `json:"stripe_secret_key"`
	YocoSecretKey   *string `json:"yoco_secret_key"`
}

type Service struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
}

func NewService(settings repository.SettingsRepository, logger *zap.Logger) *Service {
	return &Service{settings: settings, logger: logger}
}

func (s *Service) Payments(ctx context.Context) (*PaymentSettings, error) {
	all, err := s.settings.All(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := &PaymentSettings{
		DefaultProvider:  all[model.SettingDefaultProvider],
		StripeConfigured: strings.TrimSpace(all[model.SettingStripeSecretKey]) != "",
		YocoConfigured:   strings.TrimSpace(all[model.SettingYocoSecretKey]) != "",
	}
	if !model.ValidProvider(out.DefaultProvider) {
		out.DefaultProvider = model.ProviderStripe
	}
	return out, nil
}

func (s *Service) UpdatePayments(ctx context.Context, in UpdateInput) (*PaymentSettings, error) {
	if in.DefaultProvider != nil {
		p := strings.ToLower(strings.TrimSpace(*in.DefaultProvider))
		in.DefaultProvider = &p
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	updates := make(map[string]string)
	if in.DefaultProvider != nil {
		updates[model.SettingDefaultProvider] = *in.DefaultProvider
	}
	if in.StripeSecretKey != nil {
		updates[model.SettingStripeSecretKey] = strings.TrimSpace(*in.StripeSecretKey)
	}
	if in.YocoSecretKey != nil {
		updates[model.SettingYocoSecretKey] = strings.TrimSpace(*in.YocoSecretKey)
	}
	for key, value := range updates {
		if err := s.settings.Set(ctx, key, value); err != nil {
			return nil, apperr.Internal(err)
		}
		s.logger.Info("Platform setting updated", zap.String("key", key))
	}
	return s.Payments(ctx)
}

// SetDefaultProvider 只修改默认网关，admin settings set-default-provider 调用
func (s *Service) SetDefaultProvider(ctx context.Context, provider string) (*PaymentSettings, error) {
	return s.UpdatePayments(ctx, UpdateInput{DefaultProvider: &provider})
}
