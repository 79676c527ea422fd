package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"proposal.*", "proposal.accepted", true},
		{"proposal.*", "proposal.status.changed", false},
		{"payment.#", "payment.released", true},
		{"payment.#", "payment", true},
		{"#", "contract.signed", true},
		{"*.funded", "milestone.funded", true},
		{"contract.created", "contract.signed", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicMatches(tt.pattern, tt.key))
		})
	}
}

func TestLocalBus_DeliversToMatchingHandlers(t *testing.T) {
	bus := NewLocalBus(zap.NewNop())
	var got []string
	bus.Subscribe([]string{"milestone.*"}, func(ctx context.Context, data json.RawMessage) error {
		got = append(got, string(data))
		return nil
	})

	require.NoError(t, bus.PublishWithContext(context.Background(), "milestone.funded", map[string]string{"a": "b"}))
	require.NoError(t, bus.PublishWithContext(context.Background(), "proposal.accepted", map[string]string{"c": "d"}))

	assert.Equal(t, []string{`{"a":"b"}`}, got)
}

func TestLocalBus_PropagatesHandlerError(t *testing.T) {
	bus := NewLocalBus(zap.NewNop())
	bus.Subscribe([]string{"#"}, func(ctx context.Context, data json.RawMessage) error {
		return errors.New("down")
	})
	err := bus.PublishWithContext(context.Background(), "x.y", json.RawMessage(`{}`))
	assert.Error(t, err)
}
