package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/email"
	"careerhub/internal/model"
	"careerhub/internal/money"
	"careerhub/internal/repository"
	"careerhub/internal/service/notification"
	"careerhub/pkg/logger"
	"careerhub/pkg/metrics"
	"careerhub/pkg/trace"
)

// notificationNamespace 由 (event_id, user_id) 派生通知 id，重复投递命中主键冲突
var notificationNamespace = uuid.MustParse("6f1c1f2e-54a4-4f0e-9a43-3c2b7d1de0a5")

// Mailer 每类生命周期邮件一个发送方法，由 *email.Mailer 实现
type Mailer interface {
	SendProposalAccepted(ctx context.Context, to string, data email.Data) error
	SendContractCreated(ctx context.Context, to string, data email.Data) error
	SendContractSigned(ctx context.Context, to string, data email.Data) error
	SendMilestoneFunded(ctx context.Context, to string, data email.Data) error
	SendPaymentReleased(ctx context.Context, to string, data email.Data) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

// LifecycleFanoutHandler 把生命周期事件扇出为站内通知、邮件与实时推送
type LifecycleFanoutHandler struct {
	users         repository.UserRepository
	contracts     repository.ContractRepository
	notifications *notification.Service
	mailer        Mailer
	deduper       Deduper
	publicURL     string
	logger        *zap.Logger
}

func NewLifecycleFanoutHandler(
	users repository.UserRepository,
	contracts repository.ContractRepository,
	notifications *notification.Service,
	mailer Mailer,
	deduper Deduper,
	publicURL string,
	logger *zap.Logger,
) *LifecycleFanoutHandler {
	return &LifecycleFanoutHandler{
		users:         users,
		contracts:     contracts,
		notifications: notifications,
		mailer:        mailer,
		deduper:       deduper,
		publicURL:     publicURL,
		logger:        logger,
	}
}

// recipient 一个事件对一个用户的通知
type recipient struct {
	userID  string
	title   string
	message string
	link    string
	mail    email.Kind
}

// Handle 返回 error 时消息会被重投；邮件失败不影响结果
func (h *LifecycleFanoutHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.LifecycleEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal lifecycle event", zap.Error(err))
		return nil
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(zap.String("event_id", p.EventID), zap.String("type", p.Type))

	recipients := h.recipients(&p)
	if len(recipients) == 0 {
		log.Debug("No recipients for lifecycle event")
		return nil
	}

	data := h.mailData(ctx, &p)
	for _, r := range recipients {
		if err := h.deliver(ctx, log, &p, r, data); err != nil {
			return err
		}
	}
	return nil
}

func (h *LifecycleFanoutHandler) deliver(ctx context.Context, log *zap.Logger, p *mqcontracts.LifecycleEventPayload, r recipient, data email.Data) error {
	userID, err := uuid.Parse(r.userID)
	if err != nil {
		log.Warn("Lifecycle event has invalid recipient", zap.String("user_id", r.userID))
		return nil
	}
	dedupID := p.EventID + ":" + r.userID
	if !h.deduper.AcquireOnce(ctx, "notify", dedupID) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewSHA1(notificationNamespace, []byte(dedupID)),
		UserID:  userID,
		Type:    p.Type,
		Title:   r.title,
		Message: r.message,
		Link:    r.link,
	}
	err = h.notifications.Deliver(ctx, n)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil
	case err != nil:
		h.deduper.Release(ctx, "notify", dedupID)
		metrics.RecordNotification("in_app", err)
		log.Error("Failed to store notification", zap.String("user_id", r.userID), zap.Error(err))
		return err
	}
	metrics.RecordNotification("in_app", nil)

	if r.mail != "" {
		h.sendEmail(ctx, log, userID, r.mail, data)
	}
	return nil
}

// sendEmail 尽力发送，失败只记录
func (h *LifecycleFanoutHandler) sendEmail(ctx context.Context, log *zap.Logger, userID uuid.UUID, kind email.Kind, data email.Data) {
	if h.mailer == nil {
		return
	}
	u, err := h.users.FindByID(ctx, userID)
	if err != nil {
		log.Warn("Email recipient lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		metrics.RecordNotification("email", err)
		return
	}
	data.RecipientName = u.FullName
	err = h.send(ctx, kind, u.Email, data)
	metrics.RecordNotification("email", err)
	if err != nil {
		log.Warn("Failed to send email",
			zap.String("user_id", userID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (h *LifecycleFanoutHandler) send(ctx context.Context, kind email.Kind, to string, data email.Data) error {
	switch kind {
	case email.KindProposalAccepted:
		return h.mailer.SendProposalAccepted(ctx, to, data)
	case email.KindContractCreated:
		return h.mailer.SendContractCreated(ctx, to, data)
	case email.KindContractSigned:
		return h.mailer.SendContractSigned(ctx, to, data)
	case email.KindMilestoneFunded:
		return h.mailer.SendMilestoneFunded(ctx, to, data)
	case email.KindPaymentReleased:
		return h.mailer.SendPaymentReleased(ctx, to, data)
	}
	return fmt.Errorf("unsupported email kind %q", kind)
}

func (h *LifecycleFanoutHandler) mailData(ctx context.Context, p *mqcontracts.LifecycleEventPayload) email.Data {
	d := email.Data{JobTitle: p.JobTitle}
	if p.Currency != "" {
		d.Amount = money.Format(p.Amount, p.Currency)
		d.NetAmount = money.Format(p.NetAmount, p.Currency)
		d.PlatformFee = money.Format(p.PlatformFee, p.Currency)
	}
	if p.MilestoneID != "" {
		d.MilestoneTitle = p.Title
	} else {
		d.ContractTitle = p.Title
	}
	if p.ContractID != "" {
		d.Link = h.publicURL + "/contracts/" + p.ContractID
		if id, err := uuid.Parse(p.ContractID); err == nil && d.ContractTitle == "" {
			if c, err := h.contracts.FindByID(ctx, id); err == nil {
				d.ContractTitle = c.Title
			}
		}
	}
	return d
}

func (h *LifecycleFanoutHandler) recipients(p *mqcontracts.LifecycleEventPayload) []recipient {
	contractLink := h.publicURL + "/contracts/" + p.ContractID
	proposalLink := h.publicURL + "/proposals/" + p.ProposalID

	switch p.Type {
	case mqcontracts.ProposalSubmitted:
		return []recipient{{
			userID:  p.EmployerID,
			title:   "New proposal",
			message: fmt.Sprintf("You received a new proposal for %q.", p.JobTitle),
			link:    h.publicURL + "/jobs/" + p.JobID + "/proposals",
		}}
	case mqcontracts.ProposalStatusChanged:
		if p.Status == model.ProposalWithdrawn {
			return []recipient{{
				userID:  p.EmployerID,
				title:   "Proposal withdrawn",
				message: "An applicant withdrew their proposal.",
				link:    h.publicURL + "/jobs/" + p.JobID + "/proposals",
			}}
		}
		return []recipient{{
			userID:  p.ApplicantID,
			title:   "Proposal " + p.Status,
			message: fmt.Sprintf("Your proposal for %q is now %s.", p.JobTitle, p.Status),
			link:    proposalLink,
		}}
	case mqcontracts.ProposalAccepted:
		return []recipient{{
			userID:  p.ApplicantID,
			title:   "Proposal accepted",
			message: fmt.Sprintf("Your proposal for %q was accepted.", p.JobTitle),
			link:    proposalLink,
			mail:    email.KindProposalAccepted,
		}}
	case mqcontracts.ContractCreated:
		return []recipient{{
			userID:  p.ContractorID,
			title:   "New contract",
			message: fmt.Sprintf("Contract %q has been created.", p.Title),
			link:    contractLink,
			mail:    email.KindContractCreated,
		}}
	case mqcontracts.ContractSigned:
		return []recipient{{
			userID:  p.EmployerID,
			title:   "Contract signed",
			message: fmt.Sprintf("Contract %q was signed by the contractor.", p.Title),
			link:    contractLink,
			mail:    email.KindContractSigned,
		}}
	case mqcontracts.ContractCancelled:
		return []recipient{{
			userID:  p.ContractorID,
			title:   "Contract cancelled",
			message: fmt.Sprintf("Contract %q was cancelled.", p.Title),
			link:    contractLink,
		}}
	case mqcontracts.ContractCompleted:
		msg := fmt.Sprintf("Contract %q is complete.", p.Title)
		return []recipient{
			{userID: p.EmployerID, title: "Contract completed", message: msg, link: contractLink},
			{userID: p.ContractorID, title: "Contract completed", message: msg, link: contractLink},
		}
	case mqcontracts.MilestoneSubmitted:
		return []recipient{{
			userID:  p.EmployerID,
			title:   "Milestone submitted",
			message: fmt.Sprintf("Milestone %q is ready for review.", p.Title),
			link:    contractLink,
		}}
	case mqcontracts.MilestoneApproved:
		return []recipient{{
			userID:  p.ContractorID,
			title:   "Milestone approved",
			message: fmt.Sprintf("Milestone %q was approved.", p.Title),
			link:    contractLink,
		}}
	case mqcontracts.MilestoneFunded:
		return []recipient{{
			userID:  p.ContractorID,
			title:   "Milestone funded",
			message: fmt.Sprintf("Milestone %q is funded with %s.", p.Title, money.Format(p.Amount, p.Currency)),
			link:    contractLink,
			mail:    email.KindMilestoneFunded,
		}}
	case mqcontracts.PaymentReleased:
		return []recipient{
			{
				userID:  p.ContractorID,
				title:   "Payment released",
				message: fmt.Sprintf("%s was released for milestone %q.", money.Format(p.NetAmount, p.Currency), p.Title),
				link:    h.publicURL + "/earnings",
				mail:    email.KindPaymentReleased,
			},
			{
				userID:  p.EmployerID,
				title:   "Payment sent",
				message: fmt.Sprintf("Payment of %s for milestone %q was sent.", money.Format(p.Amount, p.Currency), p.Title),
				link:    contractLink,
			},
		}
	}
	return nil
}
