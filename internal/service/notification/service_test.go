package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository/memory"
)

type recordingPusher struct {
	mu            sync.Mutex
	notifications []*model.Notification
	counts        []int64
}

func (p *recordingPusher) PushNotification(_ uuid.UUID, n *model.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
}

func (p *recordingPusher) PushUnreadCount(_ uuid.UUID, count int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts = append(p.counts, count)
}

func TestDeliverPushesNotificationAndCount(t *testing.T) {
	ctx := context.Background()
	pusher := &recordingPusher{}
	svc := NewService(memory.NewStore().Notifications, pusher, zap.NewNop())
	user := uuid.New()

	require.NoError(t, svc.Deliver(ctx, &model.Notification{UserID: user, Type: "proposal.accepted", Title: "Accepted"}))
	require.NoError(t, svc.Deliver(ctx, &model.Notification{UserID: user, Type: "contract.created", Title: "Contract"}))

	assert.Len(t, pusher.notifications, 2)
	assert.Equal(t, []int64{1, 2}, pusher.counts)
	assert.NotEqual(t, uuid.Nil, pusher.notifications[0].ID)

	list, err := svc.List(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMarkReadIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	pusher := &recordingPusher{}
	svc := NewService(memory.NewStore().Notifications, pusher, zap.NewNop())
	owner, other := uuid.New(), uuid.New()

	n := &model.Notification{UserID: owner, Type: "milestone.funded", Title: "Funded"}
	require.NoError(t, svc.Deliver(ctx, n))
	require.NoError(t, svc.Deliver(ctx, &model.Notification{UserID: owner, Type: "payment.released", Title: "Paid"}))

	_, err := svc.MarkRead(ctx, other, n.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	count, err := svc.MarkRead(ctx, owner, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	updated, err := svc.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	unread, err := svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.Equal(t, int64(0), pusher.counts[len(pusher.counts)-1])
}
