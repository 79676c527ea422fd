package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestYoco_CreateCheckoutSendsAuthAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotIK string
	var gotBody yocoCheckoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkouts", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIK = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(yocoCheckoutResponse{ID: "ch_1", RedirectURL: "https://c.yoco.com/ch_1"})
	}))
	defer srv.Close()

	y := NewYoco(YocoConfig{BaseURL: srv.URL}, srv.Client())
	out, err := y.CreateCheckout(context.Background(), CheckoutRequest{
		SecretKey: "sk_test", Amount: 10000, Currency: "zar", IdempotencyKey: "fund-1",
		Metadata: map[string]string{"milestone_id": "m1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ch_1", out.ID)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, "fund-1", gotIK)
	assert.Equal(t, "ZAR", gotBody.Currency)
	assert.Equal(t, "m1", gotBody.Metadata["milestone_id"])
}

func TestYoco_ErrorResponseBecomesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"displayMessage":"recipient not verified"}`))
	}))
	defer srv.Close()

	y := NewYoco(YocoConfig{BaseURL: srv.URL}, srv.Client())
	_, err := y.CreateTransfer(context.Background(), TransferRequest{SecretKey: "sk", Destination: "r1", Amount: 1, Currency: "ZAR"})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnprocessableEntity, pe.StatusCode)
	assert.Equal(t, "recipient not verified", pe.Message)
}

func TestYoco_SupportsOnlyZAR(t *testing.T) {
	y := NewYoco(YocoConfig{}, nil)
	assert.True(t, y.SupportsCurrency("ZAR"))
	assert.True(t, y.SupportsCurrency("zar"))
	assert.False(t, y.SupportsCurrency("USD"))
}

func TestYoco_ParseWebhook(t *testing.T) {
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-key"))
	now := time.Unix(1_700_000_000, 0)
	y := NewYoco(YocoConfig{WebhookSecret: secret, Now: func() time.Time { return now }}, nil)

	body := []byte(`{"id":"evt_1","type":"payment.succeeded","payload":{"id":"p_1","status":"succeeded","metadata":{"checkoutId":"ch_9"}}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := SignYocoWebhook(secret, "msg_1", ts, body)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("webhook-id", "msg_1")
	header.Set("webhook-timestamp", ts)
	header.Set("webhook-signature", "v1,"+sig)

	ev, err := y.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "ch_9", ev.CheckoutID)

	header.Set("webhook-signature", "v1,bogus")
	_, err = y.ParseWebhook(body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	stale := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	sig, _ = SignYocoWebhook(secret, "msg_1", stale, body)
	header.Set("webhook-timestamp", stale)
	header.Set("webhook-signature", "v1,"+sig)
	_, err = y.ParseWebhook(body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestInstrument_BusinessErrorsDoNotOpenBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := Instrument(NewYoco(YocoConfig{BaseURL: srv.URL}, srv.Client()), time.Second, zap.NewNop())
	for i := 0; i < 10; i++ {
		_, err := g.CreateTransfer(context.Background(), TransferRequest{SecretKey: "sk"})
		require.Error(t, err)
	}
	assert.Equal(t, 10, calls)
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(NewStripe(StripeConfig{}), NewYoco(YocoConfig{}, nil))
	g, ok := r.Get("YOCO")
	require.True(t, ok)
	assert.Equal(t, "yoco", g.Name())

	_, ok = r.Get("paypal")
	assert.False(t, ok)
}
