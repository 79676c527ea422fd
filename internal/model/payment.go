package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderStripe = "stripe"
	ProviderYoco   = "yoco"
)

// ValidProvider 判断支付网关名称
func ValidProvider(p string) bool {
	return p == ProviderStripe || p == ProviderYoco
}

const (
	TransactionMilestonePayout = "milestone_payout"
	TransactionCompleted       = "completed"
)

// PaymentTransaction 付款流水，只追加
type PaymentTransaction struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Provider     string    `json:"provider"`
	TransferID   string    `json:"transfer_id"`
	ContractID   uuid.UUID `json:"contract_id"`
	MilestoneID  uuid.UUID `json:"milestone_id"`
	ContractorID uuid.UUID `json:"contractor_id"`
	EmployerID   uuid.UUID `json:"employer_id"`
	GrossAmount  int64     `json:"gross_amount"`
	PlatformFee  int64     `json:"platform_fee"`
	NetAmount    int64     `json:"net_amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// 平台设置 key
const (
	SettingDefaultProvider = "payments.default_provider"
	SettingStripeSecretKey = "payments.stripe_secret_key"
	SettingYocoSecretKey   = "payments.yoco_secret_key"
)

// SecretKeySetting 返回 provider 对应的平台密钥设置项
func SecretKeySetting(provider string) string {
	if provider == ProviderYoco {
		return SettingYocoSecretKey
	}
	return SettingStripeSecretKey
}
