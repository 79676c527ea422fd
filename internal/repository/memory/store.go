// Package memory 进程内存储实现，用于 storage.driver=memory 与测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/pkg/outbox"
)

// state 所有仓储共享一把锁，组合操作天然原子
type state struct {
	mu  sync.Mutex
	now func() time.Time

	users         map[uuid.UUID]*model.User
	accounts      map[string]*model.ConnectAccount
	resellers     map[uuid.UUID]*model.Reseller
	settings      map[string]string
	jobs          map[uuid.UUID]*model.Job
	proposals     map[uuid.UUID]*model.Proposal
	contracts     map[uuid.UUID]*model.Contract
	checkouts     map[checkoutKey]checkoutRef
	transactions  []*model.PaymentTransaction
	notifications map[uuid.UUID]*model.Notification
	events        []*outbox.Event
	nextEventID   int64
}

type checkoutKey struct {
	provider  string
	reference string
}

type checkoutRef struct {
	contractID  uuid.UUID
	milestoneID uuid.UUID
}

// NewStore 创建内存版 Store
func NewStore() *repository.Store {
	s := &state{
		now:           time.Now,
		users:         make(map[uuid.UUID]*model.User),
		accounts:      make(map[string]*model.ConnectAccount),
		resellers:     make(map[uuid.UUID]*model.Reseller),
		settings:      make(map[string]string),
		jobs:          make(map[uuid.UUID]*model.Job),
		proposals:     make(map[uuid.UUID]*model.Proposal),
		contracts:     make(map[uuid.UUID]*model.Contract),
		checkouts:     make(map[checkoutKey]checkoutRef),
		notifications: make(map[uuid.UUID]*model.Notification),
	}
	return &repository.Store{
		Users:         &userRepo{s},
		Accounts:      &accountRepo{s},
		Resellers:     &resellerRepo{s},
		Settings:      &settingsRepo{s},
		Jobs:          &jobRepo{s},
		Proposals:     &proposalRepo{s},
		Contracts:     &contractRepo{s},
		Payments:      &paymentRepo{s},
		Notifications: &notificationRepo{s},
		Outbox:        &outboxRepo{s},
		Ping:          func(context.Context) error { return nil },
	}
}

// appendEvents 调用方须持有锁
func (s *state) appendEvents(events []*outbox.Event) {
	now := s.now()
	for _, ev := range events {
		s.nextEventID++
		ev.ID = s.nextEventID
		if ev.Status == "" {
			ev.Status = outbox.StatusPending
		}
		ev.CreatedAt = now
		ev.UpdatedAt = now
		cp := *ev
		s.events = append(s.events, &cp)
	}
}

func copyContract(c *model.Contract) *model.Contract {
	cp := *c
	cp.Milestones = make([]model.Milestone, len(c.Milestones))
	copy(cp.Milestones, c.Milestones)
	return &cp
}

// ---- users ----

type userRepo struct{ s *state }

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.CreatedAt = r.s.now()
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *userRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) UpdateTier(_ context.Context, id uuid.UUID, tier string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.SubscriptionTier = tier
	return nil
}

func (r *userRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	return nil
}

// ---- connect accounts / resellers / settings ----

type accountRepo struct{ s *state }

func accountKey(userID uuid.UUID, provider string) string {
	return userID.String() + "/" + provider
}

func (r *accountRepo) Get(_ context.Context, userID uuid.UUID, provider string) (*model.ConnectAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountKey(userID, provider)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepo) Upsert(_ context.Context, a *model.ConnectAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.UpdatedAt = r.s.now()
	cp := *a
	r.s.accounts[accountKey(a.UserID, a.Provider)] = &cp
	return nil
}

type resellerRepo struct{ s *state }

func (r *resellerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Reseller, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rs, ok := r.s.resellers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

func (r *resellerRepo) Create(_ context.Context, rs *model.Reseller) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.resellers[rs.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *rs
	r.s.resellers[rs.ID] = &cp
	return nil
}

type settingsRepo struct{ s *state }

func (r *settingsRepo) Get(_ context.Context, key string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.settings[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (r *settingsRepo) Set(_ context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings[key] = value
	return nil
}

func (r *settingsRepo) All(_ context.Context) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]string, len(r.s.settings))
	for k, v := range r.s.settings {
		out[k] = v
	}
	return out, nil
}

// ---- jobs ----

type jobRepo struct{ s *state }

func (r *jobRepo) Create(_ context.Context, j *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j.CreatedAt = r.s.now()
	cp := *j
	r.s.jobs[j.ID] = &cp
	return nil
}

func (r *jobRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *jobRepo) ListOpen(_ context.Context, limit, offset int) ([]model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Job, 0)
	for _, j := range r.s.jobs {
		if j.Status == model.JobStatusOpen {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if offset >= len(out) {
		return []model.Job{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *jobRepo) Close(_ context.Context, id, ownerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok || j.OwnerID != ownerID || j.Status != model.JobStatusOpen {
		return repository.ErrStale
	}
	j.Status = model.JobStatusClosed
	return nil
}
