package escrow

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/gateway"
	"careerhub/internal/model"
	"careerhub/internal/money"
	"careerhub/internal/repository"
)

type OnboardResult struct {
	Provider       string                `json:"provider"`
	Account        *model.ConnectAccount `json:"account"`
	OnboardingURL  string                `json:"onboarding_url,omitempty"`
	AlreadyEnabled bool                  `json:"already_enabled"`
}

// Onboard 为用户创建（或复用）网关收款账户并返回 onboarding 链接
func (s *Service) Onboard(ctx context.Context, userID uuid.UUID, provider string) (*OnboardResult, error) {
	g, err := s.ResolveProvider(ctx, provider, "")
	if err != nil {
		return nil, err
	}
	key, u, err := s.secretFor(ctx, g.Name(), userID)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, userID, g.Name())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internal(err)
		}
		created, cerr := g.CreateAccount(ctx, key, u.Email)
		if cerr != nil {
			return nil, gatewayError(g.Name(), cerr)
		}
		acct = accountFrom(userID, g.Name(), created)
		if err := s.accounts.Upsert(ctx, acct); err != nil {
			return nil, apperr.Internal(err)
		}
		s.logger.Info("Connect account created",
			zap.String("provider", g.Name()),
			zap.String("user_id", userID.String()),
			zap.String("account_id", acct.AccountID))
	}
	if acct.PayoutsEnabled {
		return &OnboardResult{Provider: g.Name(), Account: acct, AlreadyEnabled: true}, nil
	}

	base := s.cfg.PublicURL + "/settings/payouts/" + g.Name()
	link, err := g.CreateOnboardingLink(ctx, gateway.OnboardingRequest{
		SecretKey:  key,
		AccountID:  acct.AccountID,
		RefreshURL: base + "?refresh=1",
		ReturnURL:  base + "?return=1",
	})
	if err != nil {
		return nil, gatewayError(g.Name(), err)
	}
	return &OnboardResult{Provider: g.Name(), Account: acct, OnboardingURL: link}, nil
}

// RefreshAccount 从网关同步账户的收款能力
func (s *Service) RefreshAccount(ctx context.Context, userID uuid.UUID, provider string) (*model.ConnectAccount, error) {
	g, err := s.ResolveProvider(ctx, provider, "")
	if err != nil {
		return nil, err
	}
	acct, err := s.accounts.Get(ctx, userID, g.Name())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("no " + g.Name() + " account, start onboarding first")
		}
		return nil, apperr.Internal(err)
	}
	key, _, err := s.secretFor(ctx, g.Name(), userID)
	if err != nil {
		return nil, err
	}
	remote, err := g.GetAccount(ctx, key, acct.AccountID)
	if err != nil {
		return nil, gatewayError(g.Name(), err)
	}
	updated := accountFrom(userID, g.Name(), remote)
	if err := s.accounts.Upsert(ctx, updated); err != nil {
		return nil, apperr.Internal(err)
	}
	return updated, nil
}

func accountFrom(userID uuid.UUID, provider string, a *gateway.Account) *model.ConnectAccount {
	return &model.ConnectAccount{
		UserID:           userID,
		Provider:         provider,
		AccountID:        a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}

// CurrencyTotal 单一币种的收入汇总
type CurrencyTotal struct {
	Currency     string `json:"currency"`
	Gross        int64  `json:"gross"`
	PlatformFee  int64  `json:"platform_fee"`
	Net          int64  `json:"net"`
	Payments     int    `json:"payments"`
	DisplayTotal string `json:"display_total"`
}

type Earnings struct {
	Totals       []CurrencyTotal            `json:"totals"`
	Transactions []model.PaymentTransaction `json:"transactions"`
}

// Earnings 承包方的收款流水，按币种汇总
func (s *Service) Earnings(ctx context.Context, contractorID uuid.UUID) (*Earnings, error) {
	txs, err := s.payments.ListByContractor(ctx, contractorID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byCurrency := make(map[string]*CurrencyTotal)
	for _, t := range txs {
		ct, ok := byCurrency[t.Currency]
		if !ok {
			ct = &CurrencyTotal{Currency: t.Currency}
			byCurrency[t.Currency] = ct
		}
		ct.Gross += t.GrossAmount
		ct.PlatformFee += t.PlatformFee
		ct.Net += t.NetAmount
		ct.Payments++
	}
	out := &Earnings{Totals: make([]CurrencyTotal, 0, len(byCurrency)), Transactions: txs}
	for _, ct := range byCurrency {
		ct.DisplayTotal = money.Format(ct.Net, ct.Currency)
		out.Totals = append(out.Totals, *ct)
	}
	sort.Slice(out.Totals, func(i, j int) bool { return out.Totals[i].Currency < out.Totals[j].Currency })
	return out, nil
}

// ContractPayments 合同的付款流水，双方可见
func (s *Service) ContractPayments(ctx context.Context, contractID, actor uuid.UUID) ([]model.PaymentTransaction, error) {
	c, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contract not found")
		}
		return nil, apperr.Internal(err)
	}
	if !c.IsParty(actor) {
		return nil, apperr.Forbidden("not a party to this contract")
	}
	txs, err := s.payments.ListByContract(ctx, contractID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return txs, nil
}
