package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"careerhub/pkg/circuitbreaker"
	"careerhub/pkg/metrics"
)

// instrumented 为网关调用加上超时、熔断与指标
type instrumented struct {
	next    Gateway
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// Instrument 包装网关。业务错误（4xx）不计入熔断失败
func Instrument(g Gateway, timeout time.Duration, logger *zap.Logger) Gateway {
	cfg := circuitbreaker.DefaultConfig()
	cfg.Name = "gateway." + g.Name()
	cfg.IsFailure = func(err error) bool {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return pe.StatusCode >= 500
		}
		return true
	}
	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Gateway circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetCircuitBreakerState(name, int(to))
	}
	return &instrumented{
		next:    g,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
		timeout: timeout,
	}
}

func (g *instrumented) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	err := g.breaker.ExecuteContext(ctx, fn)
	metrics.RecordGatewayCall(g.next.Name(), op, err, time.Since(start))
	return err
}

func (g *instrumented) Name() string { return g.next.Name() }

func (g *instrumented) SupportsCurrency(currency string) bool {
	return g.next.SupportsCurrency(currency)
}

func (g *instrumented) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var out *Checkout
	err := g.call(ctx, "create_checkout", func(ctx context.Context) error {
		var err error
		out, err = g.next.CreateCheckout(ctx, req)
		return err
	})
	return out, err
}

func (g *instrumented) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	var out *Transfer
	err := g.call(ctx, "create_transfer", func(ctx context.Context) error {
		var err error
		out, err = g.next.CreateTransfer(ctx, req)
		return err
	})
	return out, err
}

func (g *instrumented) CreateAccount(ctx context.Context, secretKey, email string) (*Account, error) {
	var out *Account
	err := g.call(ctx, "create_account", func(ctx context.Context) error {
		var err error
		out, err = g.next.CreateAccount(ctx, secretKey, email)
		return err
	})
	return out, err
}

func (g *instrumented) GetAccount(ctx context.Context, secretKey, accountID string) (*Account, error) {
	var out *Account
	err := g.call(ctx, "get_account", func(ctx context.Context) error {
		var err error
		out, err = g.next.GetAccount(ctx, secretKey, accountID)
		return err
	})
	return out, err
}

func (g *instrumented) CreateOnboardingLink(ctx context.Context, req OnboardingRequest) (string, error) {
	var out string
	err := g.call(ctx, "create_onboarding_link", func(ctx context.Context) error {
		var err error
		out, err = g.next.CreateOnboardingLink(ctx, req)
		return err
	})
	return out, err
}

func (g *instrumented) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	return g.next.ParseWebhook(payload, header)
}
