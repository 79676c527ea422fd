// Package gateway 对接外部支付网关（Stripe、Yoco）
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidSignature webhook 签名校验失败
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrIgnoredEvent 与托管资金无关的 webhook 事件
	ErrIgnoredEvent = errors.New("webhook event ignored")
)

// CheckoutRequest 创建托管收款会话
type CheckoutRequest struct {
	SecretKey      string
	Amount         int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type Checkout struct {
	ID          string
	RedirectURL string
}

// TransferRequest 向承包方收款账户转账
type TransferRequest struct {
	SecretKey      string
	Destination    string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Transfer struct {
	ID string
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type OnboardingRequest struct {
	SecretKey  string
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

// WebhookEvent 已验签的收款完成通知
type WebhookEvent struct {
	ID         string
	Type       string
	CheckoutID string
}

// Gateway 支付网关。密钥随请求传入，以支持经销商覆盖
type Gateway interface {
	Name() string
	SupportsCurrency(currency string) bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	CreateAccount(ctx context.Context, secretKey, email string) (*Account, error)
	GetAccount(ctx context.Context, secretKey, accountID string) (*Account, error)
	CreateOnboardingLink(ctx context.Context, req OnboardingRequest) (string, error)
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// ProviderError 网关返回的业务错误
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

// Registry 按名称查找网关
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[strings.ToLower(name)]
	return g, ok
}

// currencySet 大写货币代码集合
type currencySet map[string]struct{}

func newCurrencySet(codes []string) currencySet {
	s := make(currencySet, len(codes))
	for _, c := range codes {
		s[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return s
}

func (s currencySet) has(code string) bool {
	_, ok := s[strings.ToUpper(code)]
	return ok
}
