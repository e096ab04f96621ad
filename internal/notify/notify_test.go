package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	in  *ses.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	return &ses.SendEmailOutput{}, f.err
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, n.SendPasswordReset(context.Background(), "t1", "a@example.com", "secret", time.Now()))
	assert.Contains(t, buf.String(), `"to":"a@example.com"`)
	assert.Contains(t, buf.String(), `"tenant_id":"t1"`)
}

func TestSESNotifier_SendPasswordReset(t *testing.T) {
	fake := &fakeSES{}
	n := &SESNotifier{client: fake, from: "noreply@example.com"}
	exp := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, n.SendPasswordReset(context.Background(), "t1", "a@example.com", "secret-code", exp))
	require.NotNil(t, fake.in)
	assert.Equal(t, "noreply@example.com", aws.ToString(fake.in.Source))
	assert.Equal(t, []string{"a@example.com"}, fake.in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(fake.in.Message.Body.Text.Data), "secret-code")
}

func TestSESNotifier_Error(t *testing.T) {
	cause := errors.New("throttled")
	n := &SESNotifier{client: &fakeSES{err: cause}, from: "noreply@example.com"}
	err := n.SendPasswordReset(context.Background(), "t1", "a@example.com", "x", time.Now())
	assert.ErrorIs(t, err, cause)
}
