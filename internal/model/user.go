package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	TierFree       = "free"
	TierStarter    = "starter"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	FullName         string     `json:"full_name"`
	Role             string     `json:"role"`
	SubscriptionTier string     `json:"subscription_tier"`
	ResellerID       *uuid.UUID `json:"reseller_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Reseller 白标经销商，可覆盖平台的支付网关密钥
type Reseller struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	StripeSecretKey string    `json:"-"`
	YocoSecretKey   string    `json:"-"`
}

// SecretKey 返回经销商为 provider 配置的密钥
func (r *Reseller) SecretKey(provider string) string {
	switch provider {
	case ProviderStripe:
		return r.StripeSecretKey
	case ProviderYoco:
		return r.YocoSecretKey
	}
	return ""
}

// ConnectAccount 用户在支付网关的收款账户
type ConnectAccount struct {
	UserID           uuid.UUID `json:"user_id"`
	Provider         string    `json:"provider"`
	AccountID        string    `json:"account_id"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
	UpdatedAt        time.Time `json:"updated_at"`
}
