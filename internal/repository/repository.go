package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"careerhub/internal/model"
	"careerhub/pkg/outbox"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale 条件更新未命中：记录已被并发修改或前置状态不符
	ErrStale = errors.New("record state changed")
)

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
}

type ConnectAccountRepository interface {
	Get(ctx context.Context, userID uuid.UUID, provider string) (*model.ConnectAccount, error)
	Upsert(ctx context.Context, acct *model.ConnectAccount) error
}

type ResellerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reseller, error)
	Create(ctx context.Context, r *model.Reseller) error
}

type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type JobRepository interface {
	Create(ctx context.Context, j *model.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Job, error)
	ListOpen(ctx context.Context, limit, offset int) ([]model.Job, error)
	Close(ctx context.Context, id, ownerID uuid.UUID) error
}

type ProposalRepository interface {
	// Create 插入 pending 提案及事件；(job, applicant) 已有未撤回提案时返回 ErrDuplicate
	Create(ctx context.Context, p *model.Proposal, events []*outbox.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Proposal, error)
	ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]model.Proposal, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]model.Proposal, error)
	// UpdateStatus 仅当当前状态为 from 时更新，否则 ErrStale
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, events []*outbox.Event) error
	// Accept 在同一事务中接受提案并创建合同
	Accept(ctx context.Context, id uuid.UUID, from string, contract *model.Contract, events []*outbox.Event) error
}

type ContractRepository interface {
	// Create 插入合同及其里程碑
	Create(ctx context.Context, c *model.Contract, events []*outbox.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	ListByParty(ctx context.Context, userID uuid.UUID) ([]model.Contract, error)
	// Sign 记录承包方签署时间，draft 合同同时激活
	Sign(ctx context.Context, id, contractorID uuid.UUID, events []*outbox.Event) error
	// Cancel 仅当 draft/active、无托管资金且无未完成 checkout 时生效
	Cancel(ctx context.Context, id uuid.UUID, events []*outbox.Event) error
	// Complete 仅当 active 且所有里程碑已付款时生效
	Complete(ctx context.Context, id uuid.UUID, events []*outbox.Event) error
	AddMilestone(ctx context.Context, m *model.Milestone) error
	// TransitionMilestone 合同为 active 且里程碑状态为 from 时更新为 to
	TransitionMilestone(ctx context.Context, contractID, milestoneID uuid.UUID, from, to string, events []*outbox.Event) error
	// StartFunding 登记网关 checkout 引用，仅限 unfunded；旧 checkout 仍可确认
	StartFunding(ctx context.Context, contractID, milestoneID uuid.UUID, provider, reference string) error
	// FindByFundingReference 按里程碑登记过的任一 checkout 反查
	FindByFundingReference(ctx context.Context, provider, reference string) (*model.Contract, *model.Milestone, error)
	// ConfirmFunding unfunded -> funded；重复确认返回 ErrStale
	ConfirmFunding(ctx context.Context, contractID, milestoneID uuid.UUID, provider, reference string, events []*outbox.Event) error
	// ClaimPayout 原子占用付款资格：approved + funded + 未被占用
	ClaimPayout(ctx context.Context, contractID, milestoneID uuid.UUID) error
	ReleasePayoutClaim(ctx context.Context, contractID, milestoneID uuid.UUID) error
	// CompletePayout 同一事务：里程碑 paid/released，写流水，累加 total_paid
	CompletePayout(ctx context.Context, tx *model.PaymentTransaction, events []*outbox.Event) error
}

type PaymentRepository interface {
	ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]model.PaymentTransaction, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]model.PaymentTransaction, error)
}

type NotificationRepository interface {
	// Create id 已存在时返回 ErrDuplicate
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Store 聚合所有仓储，postgres 与 memory 两种实现
type Store struct {
	Users         UserRepository
	Accounts      ConnectAccountRepository
	Resellers     ResellerRepository
	Settings      SettingsRepository
	Jobs          JobRepository
	Proposals     ProposalRepository
	Contracts     ContractRepository
	Payments      PaymentRepository
	Notifications NotificationRepository
	Outbox        outbox.Store
	Ping          func(ctx context.Context) error
}

// PayoutClaimTTL 付款占用超时后可被重新占用，网关幂等键保证不会重复转账
const PayoutClaimTTL = 10 * time.Minute
