package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NewEvent 构造待写入的事件
func NewEvent(aggregateType, aggregateID, routingKey string, payload interface{}) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", routingKey, err)
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// InsertEventsInTx 在事务中批量插入事件（辅助函数）
func InsertEventsInTx(ctx context.Context, tx pgx.Tx, repo *Repository, events []*Event) error {
	for _, ev := range events {
		if err := repo.InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}
