package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/test/helpers"
)

type stubPresence struct {
	online bool
	err    error
}

func (s stubPresence) IsOnline(context.Context, string) (bool, error) { return s.online, s.err }

func TestInAppSender_OnlinePublishes(t *testing.T) {
	_, client := helpers.NewTestRedis(t)
	ctx := context.Background()
	broadcaster := cache.NewBroadcaster(client, "test")
	pending := cache.NewPendingStore(client, "test")

	sub := broadcaster.Subscribe(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s := NewInAppSender(stubPresence{online: true}, broadcaster, pending)
	res, err := s.Deliver(ctx, Recipient{UserID: "u1"}, Message{NotificationID: "n1", Subject: "Смена", Priority: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, res.Status)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test:rt:user:u1", msg.Channel)

	var payload InAppPayload
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "n1", payload.NotificationID)

	n, err := pending.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInAppSender_OfflineQueues(t *testing.T) {
	_, client := helpers.NewTestRedis(t)
	ctx := context.Background()
	pending := cache.NewPendingStore(client, "test")
	s := NewInAppSender(stubPresence{online: false}, cache.NewBroadcaster(client, "test"), pending)

	res, err := s.Deliver(ctx, Recipient{UserID: "u2"}, Message{NotificationID: "n2"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, res.Status)

	items, err := pending.Drain(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, string(items[0]), `"notification_id":"n2"`)
}

func TestInAppSender_PresenceError(t *testing.T) {
	_, client := helpers.NewTestRedis(t)
	s := NewInAppSender(stubPresence{err: errors.New("redis down")},
		cache.NewBroadcaster(client, "test"), cache.NewPendingStore(client, "test"))

	res, err := s.Deliver(context.Background(), Recipient{UserID: "u3"}, Message{})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func pushRecipient(t *testing.T) Recipient {
	t.Helper()
	sub, err := json.Marshal(webpush.Subscription{
		Endpoint: "https://push.example.com/abc",
		Keys:     webpush.Keys{Auth: "auth", P256dh: "key"},
	})
	require.NoError(t, err)
	return Recipient{UserID: "u1", PushSubscription: sub}
}

func responseWithStatus(code int) *http.Response {
	return &http.Response{StatusCode: code, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}
}

func TestPushSender_DisabledWithoutVAPID(t *testing.T) {
	s := NewPushSender(PushConfig{})
	res, err := s.Deliver(context.Background(), pushRecipient(t), Message{})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)
}

func TestPushSender_NoSubscription(t *testing.T) {
	s := NewPushSender(PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	res, err := s.Deliver(context.Background(), Recipient{UserID: "u1"}, Message{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoSubscription, res.Status)
}

func TestPushSender_SendsWithUrgency(t *testing.T) {
	s := NewPushSender(PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subject: "mailto:ops@example.com"})

	var gotOpts *webpush.Options
	var gotPayload PushPayload
	s.send = func(message []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		gotOpts = opts
		require.NoError(t, json.Unmarshal(message, &gotPayload))
		assert.Equal(t, "https://push.example.com/abc", sub.Endpoint)
		return responseWithStatus(http.StatusCreated), nil
	}

	res, err := s.Deliver(context.Background(), pushRecipient(t), Message{Subject: "Срочно", Body: "Нужна смена", Priority: 5})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, res.Status)
	assert.Equal(t, webpush.UrgencyHigh, gotOpts.Urgency)
	assert.True(t, gotPayload.RequireInteraction)
}

func TestPushSender_GoneSubscription(t *testing.T) {
	s := NewPushSender(PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	s.send = func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		return responseWithStatus(http.StatusGone), nil
	}
	res, err := s.Deliver(context.Background(), pushRecipient(t), Message{Priority: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusNoSubscription, res.Status)
}

func TestPushSender_ServerError(t *testing.T) {
	s := NewPushSender(PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	s.send = func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		return responseWithStatus(http.StatusInternalServerError), nil
	}
	res, err := s.Deliver(context.Background(), pushRecipient(t), Message{Priority: 2})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestBuildPushPayload_Truncates(t *testing.T) {
	raw, err := BuildPushPayload(Message{
		Subject: "Смена",
		Body:    strings.Repeat("я", 5000),
		Data:    map[string]any{"blob": strings.Repeat("x", 2000)},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), MaxPushPayloadBytes)

	var p PushPayload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Nil(t, p.Data)
	assert.True(t, strings.HasSuffix(p.Body, "..."))
}

type recordingProvider struct {
	sent []*email.Email
	err  error
}

func (p *recordingProvider) Send(_ context.Context, e *email.Email) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, e)
	return "<id@example.com>", nil
}

func (p *recordingProvider) Validate() error { return nil }

func newEmailSender(t *testing.T, provider email.Provider) *EmailSender {
	t.Helper()
	tm, err := email.NewTemplateManager()
	require.NoError(t, err)
	sealer, err := email.NewPayloadSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return NewEmailSender(provider, tm, sealer)
}

func TestEmailSender_SendsSealedHTMLWithInvite(t *testing.T) {
	provider := &recordingProvider{}
	s := newEmailSender(t, provider)

	starts := time.Date(2026, 1, 6, 22, 0, 0, 0, time.UTC)
	res, err := s.Deliver(context.Background(), Recipient{UserID: "u1", Email: "worker@example.com"}, Message{
		NotificationID: "n1",
		Type:           models.NotificationShiftAssigned,
		Priority:       4,
		Subject:        "Смена ваша",
		Body:           "Вы взяли смену",
		Data:           map[string]any{"open_shift_id": "os-1"},
		Invite:         &email.ShiftInvite{UID: "os-1", Summary: "Night shift", StartsAt: starts, EndsAt: starts.Add(8 * time.Hour)},
		CreatedAt:      starts.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, res.Status)
	assert.Equal(t, "<id@example.com>", res.ProviderID)

	require.Len(t, provider.sent, 1)
	sent := provider.sent[0]
	assert.Equal(t, []string{"worker@example.com"}, sent.To)
	assert.Contains(t, sent.HTMLBody, "notification-payload")
	assert.NotContains(t, sent.HTMLBody, "os-1", "данные уходят только в зашифрованном виде")
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "shift.ics", sent.Attachments[0].Name)
}

func TestEmailSender_NoEmail(t *testing.T) {
	s := newEmailSender(t, &recordingProvider{})
	res, err := s.Deliver(context.Background(), Recipient{UserID: "u1"}, Message{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoEmail, res.Status)
}

func TestEmailSender_ProviderError(t *testing.T) {
	s := newEmailSender(t, &recordingProvider{err: errors.New("smtp timeout")})
	res, err := s.Deliver(context.Background(), Recipient{Email: "a@example.com"}, Message{Subject: "x", Body: "y"})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

type stubSMSClient struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (c *stubSMSClient) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.params = append(c.params, p)
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestSMSSender_SkipsLowPriority(t *testing.T) {
	client := &stubSMSClient{}
	s := &SMSSender{client: client, from: "+15550000000"}

	res, err := s.Deliver(context.Background(), Recipient{Phone: "+15551112222"}, Message{Priority: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusSkippedLowPriority, res.Status)
	assert.Empty(t, client.params)

	status, skip := s.Precheck(Message{Priority: 4})
	assert.False(t, skip)
	assert.Empty(t, status)
}

func TestSMSSender_TruncatesAndSends(t *testing.T) {
	client := &stubSMSClient{}
	s := &SMSSender{client: client, from: "+15550000000"}

	res, err := s.Deliver(context.Background(), Recipient{Phone: "+15551112222"}, Message{
		Priority: 5,
		Body:     strings.Repeat("ы", 300),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, res.Status)
	assert.Equal(t, "SM123", res.ProviderID)

	require.Len(t, client.params, 1)
	assert.Equal(t, SMSMaxLength, len([]rune(*client.params[0].Body)))
	assert.Equal(t, "+15551112222", *client.params[0].To)
}

func TestSMSSender_NoPhoneAndDisabled(t *testing.T) {
	s := &SMSSender{client: &stubSMSClient{}, from: "+15550000000"}
	res, err := s.Deliver(context.Background(), Recipient{}, Message{Priority: 5})
	require.NoError(t, err)
	assert.Equal(t, StatusNoPhone, res.Status)

	disabled := NewSMSSender(SMSConfig{})
	res, err = disabled.Deliver(context.Background(), Recipient{Phone: "+1"}, Message{Priority: 5})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)
}
