package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func newSealer(t *testing.T) *PayloadSealer {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	s, err := NewPayloadSealer(key)
	require.NoError(t, err)
	return s
}

func TestPayloadSealer_SealOpen(t *testing.T) {
	s := newSealer(t)

	sealed, err := s.Seal(map[string]string{"open_shift_id": "s1"})
	require.NoError(t, err)
	assert.NotContains(t, sealed.Data, "s1")

	var out map[string]string
	require.NoError(t, s.Open(sealed, &out))
	assert.Equal(t, "s1", out["open_shift_id"])
}

func TestPayloadSealer_RandomIVAndTamperDetection(t *testing.T) {
	s := newSealer(t)

	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a.IV, b.IV, "IV случайный для каждого письма")

	a.Tag = b.Tag
	var out string
	assert.Error(t, s.Open(a, &out), "подмененный тег не проходит проверку")
}

func TestNewPayloadSealer_KeyLength(t *testing.T) {
	_, err := NewPayloadSealer([]byte("short"))
	assert.Error(t, err)
}

func TestTemplateManager_RendersNotificationLayout(t *testing.T) {
	tm, err := NewTemplateManager()
	require.NoError(t, err)
	require.True(t, tm.Has("notification"))

	html, err := tm.Render("notification", TemplateData{
		"Subject":       "Shift available",
		"Body":          "Night shift <Ward 3>",
		"Priority":      5,
		"SealedPayload": `{"iv":"x"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Shift available")
	assert.Contains(t, html, "Night shift &lt;Ward 3&gt;")
	assert.Contains(t, html, "Urgent")
	assert.Contains(t, html, `id="notification-payload"`)
}

func TestBuildShiftInvite(t *testing.T) {
	start := time.Date(2026, 1, 6, 22, 0, 0, 0, time.UTC)
	att := BuildShiftInvite(ShiftInvite{
		UID:      "open-shift-1",
		Summary:  "Night shift",
		Location: "Ward 3",
		StartsAt: start,
		EndsAt:   start.Add(8 * time.Hour),
	}, start.Add(-time.Hour))

	body := string(att.Content)
	assert.Equal(t, "shift.ics", att.Name)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "METHOD:REQUEST")
	assert.Contains(t, body, "SUMMARY:Night shift")
	assert.Contains(t, body, "DTSTART:20260106T220000Z")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestGomailProvider_Send(t *testing.T) {
	d := &fakeDialer{}
	p := &GomailProvider{
		config: &SMTPConfig{Host: "smtp.example.com", Port: 587, FromEmail: "no-reply@example.com", FromName: "Shift Offers"},
		dialer: d,
	}

	id, err := p.Send(context.Background(), &Email{
		To:          []string{"worker1@example.com"},
		Subject:     "Shift assigned",
		Body:        "You got the shift",
		HTMLBody:    "<p>You got the shift</p>",
		Attachments: []Attachment{{Name: "shift.ics", Content: []byte("BEGIN:VCALENDAR"), ContentType: "text/calendar"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@smtp.example.com>"))
	require.Len(t, d.sent, 1)

	var buf bytes.Buffer
	_, err = d.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: Shift assigned")
	assert.Contains(t, buf.String(), "shift.ics")
}

type stuckDialer struct {
	release chan struct{}
}

func (d *stuckDialer) DialAndSend(...*gomail.Message) error {
	<-d.release
	return nil
}

func TestGomailProvider_SendTimesOut(t *testing.T) {
	d := &stuckDialer{release: make(chan struct{})}
	t.Cleanup(func() { close(d.release) })
	p := &GomailProvider{
		config: &SMTPConfig{Host: "smtp.example.com", Port: 587, Timeout: 50 * time.Millisecond},
		dialer: d,
	}

	started := time.Now()
	_, err := p.Send(context.Background(), &Email{To: []string{"a@example.com"}, Subject: "x", Body: "y"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestGomailProvider_SendError(t *testing.T) {
	p := &GomailProvider{
		config: &SMTPConfig{Host: "smtp.example.com", Port: 587},
		dialer: &fakeDialer{err: errors.New("535 auth failed")},
	}
	_, err := p.Send(context.Background(), &Email{To: []string{"a@example.com"}, Subject: "x", Body: "y"})
	assert.ErrorContains(t, err, "535")
}
