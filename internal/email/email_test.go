package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTransport struct {
	to, subject, html string
	err               error
}

func (r *recordingTransport) Deliver(_ context.Context, to, subject, html string) error {
	r.to, r.subject, r.html = to, subject, html
	return r.err
}

func TestMailer_RendersPaymentReleased(t *testing.T) {
	tr := &recordingTransport{}
	m, err := NewMailer(tr, zap.NewNop())
	require.NoError(t, err)

	err = m.SendPaymentReleased(context.Background(), "dev@example.com", Data{
		RecipientName:  "Ada",
		MilestoneTitle: "Backend <api>",
		Amount:         "USD 50.00",
		NetAmount:      "USD 47.50",
		PlatformFee:    "USD 2.50",
	})
	require.NoError(t, err)

	assert.Equal(t, "dev@example.com", tr.to)
	assert.Equal(t, "Payment released", tr.subject)
	assert.Contains(t, tr.html, "Hi Ada")
	assert.Contains(t, tr.html, "USD 47.50")
	assert.Contains(t, tr.html, "Backend &lt;api&gt;")
}

func TestMailer_EveryKindRenders(t *testing.T) {
	m, err := NewMailer(&recordingTransport{}, zap.NewNop())
	require.NoError(t, err)

	for kind := range bodies {
		subject, html, err := m.Render(kind, Data{})
		require.NoError(t, err, kind)
		assert.NotEmpty(t, subject, kind)
		assert.Contains(t, html, "Hi there")
	}
}

func TestMailer_TransportErrorIsWrapped(t *testing.T) {
	boom := errors.New("smtp down")
	m, err := NewMailer(&recordingTransport{err: boom}, zap.NewNop())
	require.NoError(t, err)

	err = m.SendContractSigned(context.Background(), "x@example.com", Data{})
	assert.ErrorIs(t, err, boom)
}
