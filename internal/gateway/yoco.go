package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultYocoBaseURL = "https://payments.yoco.com"

// YocoConfig Yoco 网关配置
type YocoConfig struct {
	BaseURL       string
	WebhookSecret string
	// Now 用于 webhook 时间戳校验，测试可替换
	Now func() time.Time
}

// Yoco 只支持 ZAR
type Yoco struct {
	cfg        YocoConfig
	httpClient *http.Client
}

func NewYoco(cfg YocoConfig, httpClient *http.Client) *Yoco {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYocoBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Yoco{cfg: cfg, httpClient: httpClient}
}

func (y *Yoco) Name() string { return "yoco" }

func (y *Yoco) SupportsCurrency(currency string) bool {
	return strings.EqualFold(currency, "ZAR")
}

type yocoCheckoutRequest struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl,omitempty"`
	CancelURL  string            `json:"cancelUrl,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type yocoCheckoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
}

type yocoPayoutRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	RecipientID string            `json:"recipientId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type yocoRecipient struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
}

type yocoError struct {
	Message        string `json:"message"`
	DisplayMessage string `json:"displayMessage"`
}

func (y *Yoco) do(ctx context.Context, method, path, secretKey, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal yoco request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create yoco request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("yoco unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr yocoError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		msg := apiErr.DisplayMessage
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Provider: "yoco", StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode yoco response: %w", err)
	}
	return nil
}

func (y *Yoco) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var out yocoCheckoutResponse
	err := y.do(ctx, http.MethodPost, "/api/checkouts", req.SecretKey, req.IdempotencyKey, yocoCheckoutRequest{
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   req.Metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &Checkout{ID: out.ID, RedirectURL: out.RedirectURL}, nil
}

func (y *Yoco) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := y.do(ctx, http.MethodPost, "/api/payouts", req.SecretKey, req.IdempotencyKey, yocoPayoutRequest{
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		RecipientID: req.Destination,
		Metadata:    req.Metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &Transfer{ID: out.ID}, nil
}

func (y *Yoco) CreateAccount(ctx context.Context, secretKey, email string) (*Account, error) {
	var out yocoRecipient
	if err := y.do(ctx, http.MethodPost, "/api/recipients", secretKey, "", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return out.account(), nil
}

func (y *Yoco) GetAccount(ctx context.Context, secretKey, accountID string) (*Account, error) {
	var out yocoRecipient
	if err := y.do(ctx, http.MethodGet, "/api/recipients/"+url.PathEscape(accountID), secretKey, "", nil, &out); err != nil {
		return nil, err
	}
	return out.account(), nil
}

func (y *Yoco) CreateOnboardingLink(ctx context.Context, req OnboardingRequest) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := y.do(ctx, http.MethodPost, "/api/recipients/"+url.PathEscape(req.AccountID)+"/onboarding", req.SecretKey, "",
		map[string]string{"refreshUrl": req.RefreshURL, "returnUrl": req.ReturnURL}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (r yocoRecipient) account() *Account {
	return &Account{
		ID:               r.ID,
		ChargesEnabled:   r.ChargesEnabled,
		PayoutsEnabled:   r.PayoutsEnabled,
		DetailsSubmitted: r.DetailsSubmitted,
	}
}
