// Package gatewaytest 提供可编程的内存网关
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"careerhub/internal/gateway"
)

// Fake 记录所有调用；同一幂等键的转账只执行一次
type Fake struct {
	name       string
	currencies map[string]bool

	mu           sync.Mutex
	Checkouts    []gateway.CheckoutRequest
	Transfers    []gateway.TransferRequest
	transferByIK map[string]*gateway.Transfer
	accounts     map[string]*gateway.Account
	seq          int

	// TransferErr 非空时 CreateTransfer 返回该错误
	TransferErr error
	// CheckoutErr 非空时 CreateCheckout 返回该错误
	CheckoutErr error
	// PayoutsEnabled 新建账户的 payouts_enabled
	PayoutsEnabled bool
}

func New(name string, currencies ...string) *Fake {
	f := &Fake{
		name:         name,
		currencies:   make(map[string]bool),
		transferByIK: make(map[string]*gateway.Transfer),
		accounts:     make(map[string]*gateway.Account),
	}
	for _, c := range currencies {
		f.currencies[strings.ToUpper(c)] = true
	}
	return f
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) SupportsCurrency(currency string) bool {
	return f.currencies[strings.ToUpper(currency)]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%s_%d", prefix, f.name, f.seq)
}

func (f *Fake) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Checkouts = append(f.Checkouts, req)
	if f.CheckoutErr != nil {
		return nil, f.CheckoutErr
	}
	id := f.nextID("cs")
	return &gateway.Checkout{ID: id, RedirectURL: "https://pay.example/" + id}, nil
}

func (f *Fake) CreateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transfers = append(f.Transfers, req)
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	if tr, ok := f.transferByIK[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return tr, nil
	}
	tr := &gateway.Transfer{ID: f.nextID("tr")}
	if req.IdempotencyKey != "" {
		f.transferByIK[req.IdempotencyKey] = tr
	}
	return tr, nil
}

// TransferCount 实际执行的不同转账数
func (f *Fake) TransferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transferByIK) > 0 {
		return len(f.transferByIK)
	}
	return len(f.Transfers)
}

func (f *Fake) CreateAccount(_ context.Context, _ string, _ string) (*gateway.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := &gateway.Account{ID: f.nextID("acct"), PayoutsEnabled: f.PayoutsEnabled, ChargesEnabled: f.PayoutsEnabled}
	f.accounts[acct.ID] = acct
	cp := *acct
	return &cp, nil
}

func (f *Fake) GetAccount(_ context.Context, _ string, accountID string) (*gateway.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountID]
	if !ok {
		return nil, &gateway.ProviderError{Provider: f.name, StatusCode: http.StatusNotFound, Message: "no such account"}
	}
	cp := *acct
	return &cp, nil
}

// EnablePayouts 模拟用户完成网关侧的 onboarding
func (f *Fake) EnablePayouts(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[accountID]; ok {
		acct.PayoutsEnabled = true
		acct.ChargesEnabled = true
		acct.DetailsSubmitted = true
	}
}

func (f *Fake) CreateOnboardingLink(_ context.Context, req gateway.OnboardingRequest) (string, error) {
	return "https://onboard.example/" + req.AccountID, nil
}

// ParseWebhook 测试中 body 即 checkout id
func (f *Fake) ParseWebhook(payload []byte, _ http.Header) (*gateway.WebhookEvent, error) {
	return &gateway.WebhookEvent{ID: "evt", Type: "checkout.completed", CheckoutID: string(payload)}, nil
}
