// Package events 构造写入 outbox 的生命周期事件
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/pkg/outbox"
	"careerhub/pkg/trace"
)

const (
	AggregateProposal = "proposal"
	AggregateContract = "contract"
)

// New 补全信封字段（event_id、trace_id、occurred_at）后生成 outbox 事件
func New(ctx context.Context, aggregateType, aggregateID, routingKey string, p mqcontracts.LifecycleEventPayload) (*outbox.Event, error) {
	p.EventID = uuid.NewString()
	p.Type = routingKey
	p.TraceID = trace.FromContext(ctx)
	p.OccurredAt = time.Now().UTC()
	return outbox.NewEvent(aggregateType, aggregateID, routingKey, p)
}
