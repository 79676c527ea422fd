// Package escrow 托管资金：里程碑注资与放款
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/gateway"
	"careerhub/internal/model"
	"careerhub/internal/repository"
)

// PlatformFeePercent 平台抽成，放款时从里程碑金额中扣除
const PlatformFeePercent int64 = 5

// Locker 请求级互斥锁，*util.Deduper 满足该接口
type Locker interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

type Config struct {
	// PublicURL 前端地址，用于回跳链接
	PublicURL string
}

type Service struct {
	cfg         Config
	contracts   repository.ContractRepository
	accounts    repository.ConnectAccountRepository
	users       repository.UserRepository
	settings    repository.SettingsRepository
	payments    repository.PaymentRepository
	gateways    *gateway.Registry
	credentials *CredentialResolver
	locker      Locker
	logger      *zap.Logger
}

func NewService(cfg Config, store *repository.Store, gateways *gateway.Registry, locker Locker, logger *zap.Logger) *Service {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Service{
		cfg:         cfg,
		contracts:   store.Contracts,
		accounts:    store.Accounts,
		users:       store.Users,
		settings:    store.Settings,
		payments:    store.Payments,
		gateways:    gateways,
		credentials: NewCredentialResolver(store.Resellers, store.Settings),
		locker:      locker,
		logger:      logger,
	}
}

// DefaultProvider 平台设置中的默认网关，未设置时为 stripe
func (s *Service) DefaultProvider(ctx context.Context) (string, error) {
	p, err := s.settings.Get(ctx, model.SettingDefaultProvider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.ProviderStripe, nil
		}
		return "", apperr.Internal(err)
	}
	p = strings.ToLower(strings.TrimSpace(p))
	if !model.ValidProvider(p) {
		return model.ProviderStripe, nil
	}
	return p, nil
}

// ResolveProvider 选择网关并校验币种，不发起任何网络请求
func (s *Service) ResolveProvider(ctx context.Context, requested, currency string) (gateway.Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(requested))
	if provider == "" {
		var err error
		if provider, err = s.DefaultProvider(ctx); err != nil {
			return nil, err
		}
	}
	if !model.ValidProvider(provider) {
		return nil, apperr.InvalidRequest(fmt.Sprintf("unsupported payment provider %q", requested))
	}
	if provider == model.ProviderYoco && !strings.EqualFold(currency, "ZAR") {
		return nil, apperr.InvalidRequest("Yoco only supports ZAR")
	}

	g, ok := s.gateways.Get(provider)
	if !ok {
		return nil, apperr.NotConfigured(provider + " payments are not configured")
	}
	if currency != "" && !g.SupportsCurrency(currency) {
		return nil, apperr.InvalidRequest(fmt.Sprintf("%s does not support %s", provider, strings.ToUpper(currency)))
	}
	return g, nil
}

// secretFor 以用户所属经销商解析密钥
func (s *Service) secretFor(ctx context.Context, provider string, userID uuid.UUID) (string, *model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.NotFound("user not found")
		}
		return "", nil, apperr.Internal(err)
	}
	key, err := s.credentials.Resolve(ctx, provider, u.ResellerID)
	if err != nil {
		return "", nil, err
	}
	return key, u, nil
}

func (s *Service) loadMilestone(ctx context.Context, contractID, milestoneID uuid.UUID) (*model.Contract, *model.Milestone, error) {
	c, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.NotFound("contract not found")
		}
		return nil, nil, apperr.Internal(err)
	}
	m, ok := c.Milestone(milestoneID)
	if !ok {
		return nil, nil, apperr.NotFound("milestone not found")
	}
	return c, m, nil
}

// gatewayError 透传网关的业务提示，其余情况返回通用信息
func gatewayError(provider string, err error) error {
	var pe *gateway.ProviderError
	if errors.As(err, &pe) && pe.StatusCode < 500 {
		return apperr.Gateway(pe.Message, err)
	}
	return apperr.Gateway(provider+" is unavailable, please try again later", err)
}
