package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/apperr"
	"careerhub/internal/gateway"
	"careerhub/internal/model"
	"careerhub/internal/money"
	"careerhub/internal/repository"
	"careerhub/internal/service/events"
	"careerhub/pkg/metrics"
	"careerhub/pkg/otel"
	"careerhub/pkg/outbox"
)

const payoutLockScope = "payout"

// ReleasePayment 放款给承包方，同一里程碑至多成功一次
//
// 前置条件按顺序检查：请求人为雇主、里程碑已验收、资金已托管、承包方可收款。
// 网关转账使用固定幂等键，占用超时后的重试不会产生第二笔转账。
func (s *Service) ReleasePayment(ctx context.Context, contractID, milestoneID, actor uuid.UUID) (*model.PaymentTransaction, error) {
	ctx, span := otel.StartSpan(ctx, "escrow.ReleasePayment", oteltrace.WithAttributes(
		attribute.String("contract_id", contractID.String()),
		attribute.String("milestone_id", milestoneID.String()),
	))
	defer span.End()

	tx, err := s.releasePayment(ctx, contractID, milestoneID, actor)
	if err != nil {
		span.RecordError(err)
	}
	return tx, err
}

func (s *Service) releasePayment(ctx context.Context, contractID, milestoneID, actor uuid.UUID) (*model.PaymentTransaction, error) {
	c, m, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPayout(c, m, actor); err != nil {
		return nil, err
	}

	provider := m.FundingProvider
	if provider == "" {
		if provider, err = s.DefaultProvider(ctx); err != nil {
			return nil, err
		}
	}
	g, ok := s.gateways.Get(provider)
	if !ok {
		return nil, apperr.NotConfigured(provider + " payments are not configured")
	}
	acct, err := s.payoutAccount(ctx, c.ContractorID, provider)
	if err != nil {
		return nil, err
	}
	key, _, err := s.secretFor(ctx, provider, c.EmployerID)
	if err != nil {
		return nil, err
	}

	lockID := m.ID.String()
	if !s.locker.AcquireOnce(ctx, payoutLockScope, lockID) {
		return nil, apperr.Conflict("payout already in progress")
	}
	defer s.locker.Release(context.WithoutCancel(ctx), payoutLockScope, lockID)

	if err := s.contracts.ClaimPayout(ctx, c.ID, m.ID); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, s.claimConflict(ctx, c.ID, m.ID)
		}
		return nil, apperr.Internal(err)
	}

	fee, net := money.SplitFee(m.Amount, PlatformFeePercent)
	transfer, err := g.CreateTransfer(ctx, gateway.TransferRequest{
		SecretKey:   key,
		Destination: acct.AccountID,
		Amount:      net,
		Currency:    c.Currency,
		Metadata: map[string]string{
			"contract_id":  c.ID.String(),
			"milestone_id": m.ID.String(),
		},
		IdempotencyKey: "payout-" + m.ID.String(),
	})
	if err != nil {
		if rerr := s.contracts.ReleasePayoutClaim(context.WithoutCancel(ctx), c.ID, m.ID); rerr != nil {
			s.logger.Error("Failed to release payout claim", zap.String("milestone_id", m.ID.String()), zap.Error(rerr))
		}
		metrics.RecordPayout(provider, "gateway_error", c.Currency, 0)
		s.logger.Warn("Payout transfer failed",
			zap.String("provider", provider),
			zap.String("milestone_id", m.ID.String()),
			zap.Error(err))
		return nil, gatewayError(provider, err)
	}

	tx := &model.PaymentTransaction{
		ID:           uuid.New(),
		Type:         model.TransactionMilestonePayout,
		Provider:     provider,
		TransferID:   transfer.ID,
		ContractID:   c.ID,
		MilestoneID:  m.ID,
		ContractorID: c.ContractorID,
		EmployerID:   c.EmployerID,
		GrossAmount:  m.Amount,
		PlatformFee:  fee,
		NetAmount:    net,
		Currency:     c.Currency,
		Status:       model.TransactionCompleted,
	}
	ev, err := events.New(ctx, events.AggregateContract, c.ID.String(), mqcontracts.PaymentReleased, mqcontracts.LifecycleEventPayload{
		ContractID:   c.ID.String(),
		MilestoneID:  m.ID.String(),
		Title:        m.Title,
		EmployerID:   c.EmployerID.String(),
		ContractorID: c.ContractorID.String(),
		Provider:     provider,
		Currency:     c.Currency,
		Amount:       m.Amount,
		PlatformFee:  fee,
		NetAmount:    net,
		TransferID:   transfer.ID,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// 转账已成功：提交失败时保留占用，由对账处理，避免重复放款
	if err := s.contracts.CompletePayout(ctx, tx, []*outbox.Event{ev}); err != nil {
		metrics.RecordPayout(provider, "commit_failed", c.Currency, 0)
		s.logger.Error("Transfer succeeded but payout commit failed",
			zap.String("milestone_id", m.ID.String()),
			zap.String("transfer_id", transfer.ID),
			zap.Error(err))
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("milestone already paid")
		}
		return nil, apperr.Internal(err)
	}

	metrics.RecordPayout(provider, "success", c.Currency, fee)
	s.logger.Info("Milestone payment released",
		zap.String("provider", provider),
		zap.String("contract_id", c.ID.String()),
		zap.String("milestone_id", m.ID.String()),
		zap.String("transfer_id", transfer.ID),
		zap.Int64("gross", m.Amount),
		zap.Int64("fee", fee),
		zap.Int64("net", net))
	return tx, nil
}

func (s *Service) checkPayout(c *model.Contract, m *model.Milestone, actor uuid.UUID) error {
	if c.EmployerID != actor {
		return apperr.InvalidRequest("only the contract's employer can release payment")
	}
	if m.Status == model.MilestonePaid {
		return apperr.Conflict("milestone already paid")
	}
	if m.Status != model.MilestoneApproved {
		return apperr.InvalidState("milestone must be approved before payment")
	}
	if m.EscrowStatus != model.EscrowFunded {
		return apperr.InvalidState("milestone escrow is not funded")
	}
	return nil
}

func (s *Service) payoutAccount(ctx context.Context, contractorID uuid.UUID, provider string) (*model.ConnectAccount, error) {
	acct, err := s.accounts.Get(ctx, contractorID, provider)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}
	if acct == nil || !acct.PayoutsEnabled {
		return nil, apperr.InvalidRequest("contractor has not enabled payouts on " + provider)
	}
	return acct, nil
}

// claimConflict 占用失败后重新读取，区分已付款与进行中
func (s *Service) claimConflict(ctx context.Context, contractID, milestoneID uuid.UUID) error {
	_, m, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err == nil && m.Status == model.MilestonePaid {
		return apperr.Conflict("milestone already paid")
	}
	return apperr.Conflict("payout already in progress")
}
