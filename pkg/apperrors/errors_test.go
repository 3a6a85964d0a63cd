package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockContentionError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("progress: %w", LockContentionError("open_shift:42", errors.New("held")))

	assert.True(t, Is(err, ErrLockContention), "обернутая ошибка должна совпадать с ErrLockContention по коду")
	assert.True(t, HasCode(err, CodeLockContention))
	assert.Equal(t, SeverityWarning, SeverityOf(err))
	assert.False(t, Is(err, ErrOfferNotActionable))
}

func TestSeverityDefaults(t *testing.T) {
	assert.Equal(t, SeverityError, SeverityOf(errors.New("plain")), "не-AppError считается error")
	assert.Equal(t, SeverityInfo, SeverityOf(ErrNotFound(nil)))
	assert.Equal(t, SeverityError, SeverityOf(PersistenceError(errors.New("db down"), "save failed")))
	assert.Equal(t, SeverityWarning, SeverityOf(AuditWriteError(errors.New("x"))))
}

func TestAppError_JSONHidesCause(t *testing.T) {
	appErr := ChannelDeliveryError("sms", errors.New("twilio: 21211 invalid number"))

	raw, err := json.Marshal(appErr)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, string(CodeChannelDelivery), body["code"])
	assert.NotContains(t, string(raw), "21211", "причина не должна утекать клиенту")
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPCode)
}

func TestRateLimitedError_Details(t *testing.T) {
	appErr := RateLimitedError("respond", 42)

	assert.Equal(t, http.StatusTooManyRequests, appErr.HTTPCode)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), details["retry_after_seconds"])
}
