package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig Stripe 网关配置
type StripeConfig struct {
	WebhookSecret string
	Currencies    []string
	// APIURL 非空时覆盖 Stripe API 地址（stripe-mock 等）
	APIURL string
}

type Stripe struct {
	cfg        StripeConfig
	currencies currencySet
}

func NewStripe(cfg StripeConfig) *Stripe {
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = []string{"USD", "EUR", "GBP", "ZAR"}
	}
	return &Stripe{cfg: cfg, currencies: newCurrencySet(cfg.Currencies)}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) SupportsCurrency(currency string) bool {
	return s.currencies.has(currency)
}

func (s *Stripe) client(secretKey string) *client.API {
	var backends *stripe.Backends
	if s.cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(s.cfg.APIURL),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return sc
}

// CreateCheckout 创建一次性付款的 Checkout Session
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := s.client(req.SecretKey).CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &Checkout{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// CreateTransfer 平台余额转入 Connect 账户
func (s *Stripe) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := s.client(req.SecretKey).Transfers.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &Transfer{ID: tr.ID}, nil
}

func (s *Stripe) CreateAccount(ctx context.Context, secretKey, email string) (*Account, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	acct, err := s.client(secretKey).Accounts.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toAccount(acct), nil
}

func (s *Stripe) GetAccount(ctx context.Context, secretKey, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := s.client(secretKey).Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toAccount(acct), nil
}

func (s *Stripe) CreateOnboardingLink(ctx context.Context, req OnboardingRequest) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(req.AccountID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := s.client(req.SecretKey).AccountLinks.New(params)
	if err != nil {
		return "", wrapStripeError(err)
	}
	return link.URL, nil
}

// ParseWebhook 校验 Stripe-Signature，只关心已付款的 checkout.session.completed
func (s *Stripe) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Type != "checkout.session.completed" {
		return nil, ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrIgnoredEvent
	}
	return &WebhookEvent{ID: event.ID, Type: string(event.Type), CheckoutID: sess.ID}, nil
}

func toAccount(a *stripe.Account) *Account {
	return &Account{
		ID:               a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}

func wrapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = string(se.Code)
		}
		return &ProviderError{Provider: "stripe", StatusCode: se.HTTPStatusCode, Message: msg}
	}
	return err
}
