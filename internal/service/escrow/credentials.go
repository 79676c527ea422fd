package escrow

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/google/uuid"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
)

// envKeys provider 对应的环境变量
var envKeys = map[string]string{
	model.ProviderStripe: "STRIPE_SECRET_KEY",
	model.ProviderYoco:   "YOCO_SECRET_KEY",
}

// CredentialResolver 按 经销商覆盖 → 平台设置 → 环境变量 的顺序解析网关密钥
type CredentialResolver struct {
	resellers repository.ResellerRepository
	settings  repository.SettingsRepository
	lookupEnv func(string) string
}

func NewCredentialResolver(resellers repository.ResellerRepository, settings repository.SettingsRepository) *CredentialResolver {
	return &CredentialResolver{resellers: resellers, settings: settings, lookupEnv: os.Getenv}
}

// Resolve 无可用密钥时返回 NotConfigured
func (r *CredentialResolver) Resolve(ctx context.Context, provider string, resellerID *uuid.UUID) (string, error) {
	if resellerID != nil {
		rs, err := r.resellers.FindByID(ctx, *resellerID)
		switch {
		case err == nil:
			if key := strings.TrimSpace(rs.SecretKey(provider)); key != "" {
				return key, nil
			}
		case !errors.Is(err, repository.ErrNotFound):
			return "", apperr.Internal(err)
		}
	}

	key, err := r.settings.Get(ctx, model.SecretKeySetting(provider))
	switch {
	case err == nil:
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	case !errors.Is(err, repository.ErrNotFound):
		return "", apperr.Internal(err)
	}

	if name, ok := envKeys[provider]; ok {
		if key := strings.TrimSpace(r.lookupEnv(name)); key != "" {
			return key, nil
		}
	}
	return "", apperr.NotConfigured(provider + " payments are not configured")
}
