package escrow

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/apperr"
	"careerhub/internal/gateway"
	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/internal/service/events"
	"careerhub/pkg/metrics"
	"careerhub/pkg/outbox"
)

type FundInput struct {
	Provider string `json:"provider" validate:"omitempty,provider"`
}

type FundResult struct {
	Provider    string `json:"provider"`
	CheckoutID  string `json:"checkout_id"`
	RedirectURL string `json:"redirect_url"`
}

// FundMilestone 为里程碑创建网关 checkout，资金在 webhook 确认后进入托管
func (s *Service) FundMilestone(ctx context.Context, contractID, milestoneID, actor uuid.UUID, in FundInput) (*FundResult, error) {
	c, m, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if c.EmployerID != actor {
		return nil, apperr.Forbidden("only the employer can fund milestones")
	}
	if c.Status != model.ContractActive {
		return nil, apperr.InvalidState("contract is " + c.Status)
	}
	if m.EscrowStatus != model.EscrowUnfunded {
		return nil, apperr.Conflict("milestone already funded")
	}

	g, err := s.ResolveProvider(ctx, in.Provider, c.Currency)
	if err != nil {
		return nil, err
	}
	key, _, err := s.secretFor(ctx, g.Name(), actor)
	if err != nil {
		return nil, err
	}

	checkout, err := g.CreateCheckout(ctx, gateway.CheckoutRequest{
		SecretKey:   key,
		Amount:      m.Amount,
		Currency:    c.Currency,
		Description: c.Title + " - " + m.Title,
		SuccessURL:  s.cfg.PublicURL + "/contracts/" + c.ID.String() + "?funding=success",
		CancelURL:   s.cfg.PublicURL + "/contracts/" + c.ID.String() + "?funding=cancelled",
		Metadata: map[string]string{
			"contract_id":  c.ID.String(),
			"milestone_id": m.ID.String(),
			"employer_id":  c.EmployerID.String(),
		},
		IdempotencyKey: "fund-" + m.ID.String() + "-" + g.Name(),
	})
	if err != nil {
		s.logger.Warn("Checkout creation failed",
			zap.String("provider", g.Name()),
			zap.String("milestone_id", m.ID.String()),
			zap.Error(err))
		return nil, gatewayError(g.Name(), err)
	}

	if err := s.contracts.StartFunding(ctx, c.ID, m.ID, g.Name(), checkout.ID); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, apperr.Conflict("milestone already funded")
		}
		return nil, apperr.Internal(err)
	}
	metrics.RecordFunding(g.Name(), "checkout_created")
	s.logger.Info("Milestone checkout created",
		zap.String("provider", g.Name()),
		zap.String("contract_id", c.ID.String()),
		zap.String("milestone_id", m.ID.String()),
		zap.String("checkout_id", checkout.ID))

	return &FundResult{Provider: g.Name(), CheckoutID: checkout.ID, RedirectURL: checkout.RedirectURL}, nil
}

// HandleWebhook 校验签名并确认注资；无关事件直接忽略
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) error {
	g, ok := s.gateways.Get(provider)
	if !ok {
		return apperr.NotFound("unknown payment provider")
	}
	evt, err := g.ParseWebhook(payload, header)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrIgnoredEvent):
			return nil
		case errors.Is(err, gateway.ErrInvalidSignature):
			s.logger.Warn("Webhook signature rejected", zap.String("provider", g.Name()))
			return apperr.InvalidRequest("invalid webhook signature")
		}
		return apperr.InvalidRequest("malformed webhook payload")
	}
	return s.ConfirmFunding(ctx, g.Name(), evt.CheckoutID)
}

// ConfirmFunding unfunded -> funded；重复投递为 no-op，里程碑的任一 checkout 均可确认
func (s *Service) ConfirmFunding(ctx context.Context, provider, checkoutID string) error {
	c, m, err := s.contracts.FindByFundingReference(ctx, provider, checkoutID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Webhook for unknown checkout",
				zap.String("provider", provider),
				zap.String("checkout_id", checkoutID))
			return nil
		}
		return apperr.Internal(err)
	}
	if m.EscrowStatus != model.EscrowUnfunded {
		if m.FundingProvider != provider || m.FundingReference != checkoutID {
			// 同一里程碑的另一笔 checkout 已先确认，本笔需人工退款
			metrics.RecordFunding(provider, "duplicate_payment")
			s.logger.Error("Checkout paid for an already funded milestone",
				zap.String("provider", provider),
				zap.String("checkout_id", checkoutID),
				zap.String("contract_id", c.ID.String()),
				zap.String("milestone_id", m.ID.String()),
				zap.String("funded_by", m.FundingProvider+":"+m.FundingReference))
		}
		return nil
	}

	ev, err := events.New(ctx, events.AggregateContract, c.ID.String(), mqcontracts.MilestoneFunded, mqcontracts.LifecycleEventPayload{
		ContractID:   c.ID.String(),
		MilestoneID:  m.ID.String(),
		Title:        m.Title,
		EmployerID:   c.EmployerID.String(),
		ContractorID: c.ContractorID.String(),
		Provider:     provider,
		Currency:     c.Currency,
		Amount:       m.Amount,
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.contracts.ConfirmFunding(ctx, c.ID, m.ID, provider, checkoutID, []*outbox.Event{ev}); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil
		}
		return apperr.Internal(err)
	}
	metrics.RecordFunding(provider, "confirmed")
	s.logger.Info("Milestone funded",
		zap.String("provider", provider),
		zap.String("contract_id", c.ID.String()),
		zap.String("milestone_id", m.ID.String()),
		zap.Int64("amount", m.Amount))
	return nil
}
