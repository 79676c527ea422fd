package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// yocoWebhookTolerance 时间戳允许的偏差
const yocoWebhookTolerance = 5 * time.Minute

type yocoWebhookBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"payload"`
}

// ParseWebhook 校验 webhook-signature（v1,<base64 HMAC-SHA256>），只处理 payment.succeeded
func (y *Yoco) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if err := y.verifySignature(payload, header); err != nil {
		return nil, err
	}

	var body yocoWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode yoco webhook: %w", err)
	}
	if body.Type != "payment.succeeded" {
		return nil, ErrIgnoredEvent
	}
	checkoutID := body.Payload.Metadata["checkoutId"]
	if checkoutID == "" {
		return nil, ErrIgnoredEvent
	}
	return &WebhookEvent{ID: body.ID, Type: body.Type, CheckoutID: checkoutID}, nil
}

func (y *Yoco) verifySignature(payload []byte, header http.Header) error {
	id := header.Get("webhook-id")
	ts := header.Get("webhook-timestamp")
	sigHeader := header.Get("webhook-signature")
	if id == "" || ts == "" || sigHeader == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if d := y.cfg.Now().Sub(time.Unix(unix, 0)); d > yocoWebhookTolerance || d < -yocoWebhookTolerance {
		return ErrInvalidSignature
	}

	expected, err := SignYocoWebhook(y.cfg.WebhookSecret, id, ts, payload)
	if err != nil {
		return err
	}
	for _, candidate := range strings.Fields(sigHeader) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignYocoWebhook 计算 base64(HMAC-SHA256(secret, id.timestamp.body))
func SignYocoWebhook(secret, id, timestamp string, payload []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return "", fmt.Errorf("invalid yoco webhook secret: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
