package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LocalBus delivers published events to in-process handlers. It stands in
// for RabbitMQ when mq.enabled is false, using the same topic matching.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []localBinding
	logger   *zap.Logger
}

type localBinding struct {
	pattern string
	handler MessageHandler
}

func NewLocalBus(logger *zap.Logger) *LocalBus {
	return &LocalBus{logger: logger}
}

// Subscribe registers handler for every binding key pattern.
func (b *LocalBus) Subscribe(bindingKeys []string, handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range bindingKeys {
		b.handlers = append(b.handlers, localBinding{pattern: key, handler: handler})
	}
}

// PublishWithContext runs matching handlers synchronously. A handler error is
// returned so the outbox keeps the event pending and retries it.
func (b *LocalBus) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	matched := make([]MessageHandler, 0, 1)
	for _, binding := range b.handlers {
		if TopicMatches(binding.pattern, routingKey) {
			matched = append(matched, binding.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		if err := h(ctx, json.RawMessage(body)); err != nil {
			return fmt.Errorf("local handler for %s: %w", routingKey, err)
		}
	}
	if len(matched) == 0 {
		b.logger.Debug("No local subscriber for event", zap.String("routing_key", routingKey))
	}
	return nil
}

func (b *LocalBus) IsConnected() bool { return true }

// TopicMatches implements AMQP topic semantics: words are dot separated,
// "*" matches exactly one word and "#" matches zero or more.
func TopicMatches(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}
