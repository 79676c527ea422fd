package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"careerhub/internal/model"
	"careerhub/internal/repository"
	"careerhub/pkg/outbox"
)

type notificationRepo struct{ s *state }

func (r *notificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[n.ID]; ok {
		return repository.ErrDuplicate
	}
	n.CreatedAt = r.s.now()
	cp := *n
	r.s.notifications[n.ID] = &cp
	return nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Notification, 0)
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var updated int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

// outboxRepo 实现 outbox.Store
type outboxRepo struct{ s *state }

func (r *outboxRepo) GetPendingEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var out []*outbox.Event
	for _, ev := range r.s.events {
		if ev.Status != outbox.StatusPending {
			continue
		}
		if ev.NextRetryAt != nil && ev.NextRetryAt.After(now) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) find(id int64) (*outbox.Event, error) {
	for _, ev := range r.s.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, outbox.ErrEventNotFound
}

func (r *outboxRepo) MarkAsSent(_ context.Context, eventID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, err := r.find(eventID)
	if err != nil {
		return err
	}
	ev.Status = outbox.StatusSent
	ev.NextRetryAt = nil
	ev.UpdatedAt = r.s.now()
	return nil
}

func (r *outboxRepo) MarkAsFailed(_ context.Context, eventID int64, maxRetries int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, err := r.find(eventID)
	if err != nil {
		return err
	}
	ev.RetryCount++
	ev.Status, ev.NextRetryAt = outbox.NextRetryAt(ev.RetryCount, maxRetries, r.s.now())
	ev.UpdatedAt = r.s.now()
	return nil
}

func (r *outboxRepo) GetEventByID(_ context.Context, eventID int64) (*outbox.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, err := r.find(eventID)
	if err != nil {
		return nil, err
	}
	cp := *ev
	return &cp, nil
}

func (r *outboxRepo) GetFailedEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*outbox.Event
	for i := len(r.s.events) - 1; i >= 0; i-- {
		if ev := r.s.events[i]; ev.Status == outbox.StatusFailed {
			cp := *ev
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
