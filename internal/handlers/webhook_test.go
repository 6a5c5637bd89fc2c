package handlers

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-dispatch-go/internal/models"
	"push-dispatch-go/internal/push"
)

const insertBody = `{
	"type": "INSERT",
	"table": "notifications",
	"record": {
		"id": "n1",
		"user_id": "u1",
		"title": "New response",
		"body": "Sam answered your check",
		"type": "check_response",
		"related_check_id": "c1"
	}
}`

func hookHeaders() map[string]string {
	return map[string]string{webhookSecretHeader: testSecret}
}

func TestWebhook_DispatchesRecord(t *testing.T) {
	env := newTestEnv(t, true)
	env.dispatcher.fn = func(models.Notification) (int, error) { return 2, nil }

	rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":2}`, rec.Body.String())

	require.Equal(t, 1, env.dispatcher.callCount())
	n := env.dispatcher.calls[0]
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "c1", n.RelatedID())
	assert.Equal(t, []string{"n1"}, env.notifications.marked)

	require.Len(t, env.events.events, 1)
	assert.Equal(t, "webhook", env.events.events[0].Source)
	assert.Equal(t, 2, env.events.events[0].Sent)
}

func TestWebhook_DuplicateWithinWindow(t *testing.T) {
	env := newTestEnv(t, true)
	env.dispatcher.fn = func(models.Notification) (int, error) { return 1, nil }

	first := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())
	env.clock = env.clock.Add(30 * time.Second)
	second := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

	assert.JSONEq(t, `{"sent":1}`, first.Body.String())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"sent":0,"duplicate":true}`, second.Body.String())
	assert.Equal(t, 1, env.dispatcher.callCount(), "the duplicate must not be sent again")

	expected := `
# HELP push_dedup_hits_total Webhook deliveries short-circuited as duplicates.
# TYPE push_dedup_hits_total counter
push_dedup_hits_total 1
`
	require.NoError(t, testutil.GatherAndCompare(env.reg, strings.NewReader(expected), "push_dedup_hits_total"))
}

func TestWebhook_RedeliveredAfterWindow(t *testing.T) {
	env := newTestEnv(t, true)

	env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())
	env.clock = env.clock.Add(61 * time.Second)
	rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

	assert.JSONEq(t, `{"sent":1}`, rec.Body.String())
	assert.Equal(t, 2, env.dispatcher.callCount())
}

func TestWebhook_RecordWithoutIDSkipsDedup(t *testing.T) {
	env := newTestEnv(t, true)
	body := `{"type":"INSERT","table":"notifications","record":{"user_id":"u1","title":"t","type":"friend_request"}}`

	env.do(http.MethodPost, "/api/push/webhook", body, hookHeaders())
	rec := env.do(http.MethodPost, "/api/push/webhook", body, hookHeaders())

	assert.JSONEq(t, `{"sent":1}`, rec.Body.String())
	assert.Equal(t, 0, env.dedup.callCount())
	assert.Equal(t, 2, env.dispatcher.callCount())
	assert.Empty(t, env.notifications.marked)
}

func TestWebhook_Unauthorized(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		headers map[string]string
	}{
		{name: "wrong secret", secret: testSecret, headers: map[string]string{webhookSecretHeader: "guess"}},
		{name: "missing header", secret: testSecret, headers: nil},
		{name: "prefix of secret", secret: testSecret, headers: map[string]string{webhookSecretHeader: testSecret[:4]}},
		{name: "secret not configured", secret: "", headers: map[string]string{webhookSecretHeader: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, func(d *Deps) { d.WebhookSecret = tt.secret })

			rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, tt.headers)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, 0, env.dedup.callCount(), "rejected callers must not touch the dedup cache")
			assert.Equal(t, 0, env.dispatcher.callCount())
		})
	}
}

func TestWebhook_UnauthorizedDoesNotPoisonCache(t *testing.T) {
	env := newTestEnv(t, true)

	env.do(http.MethodPost, "/api/push/webhook", insertBody, map[string]string{webhookSecretHeader: "guess"})
	rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

	assert.JSONEq(t, `{"sent":1}`, rec.Body.String())
}

func TestWebhook_BadRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "invalid json", body: `{"record":`, wantMsg: "invalid JSON body"},
		{name: "missing record", body: `{"type":"INSERT","table":"notifications"}`, wantMsg: "record is required"},
		{name: "missing recipient", body: `{"record":{"id":"n1","title":"t"}}`, wantMsg: "record.user_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)

			rec := env.do(http.MethodPost, "/api/push/webhook", tt.body, hookHeaders())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Equal(t, 0, env.dedup.callCount())
			assert.Equal(t, 0, env.dispatcher.callCount())
		})
	}
}

func TestWebhook_NotConfigured(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"push notifications are not configured"}`, rec.Body.String())
	assert.Equal(t, 0, env.dedup.callCount())
	assert.Equal(t, 0, env.dispatcher.callCount())
}

func TestWebhook_DispatchErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "missing recipient", err: push.ErrMissingRecipient, wantCode: http.StatusBadRequest},
		{name: "store failure", err: errors.New("list subscriptions: connection refused"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			env.dispatcher.fn = func(models.Notification) (int, error) { return 0, tt.err }

			rec := env.do(http.MethodPost, "/api/push/webhook", insertBody, hookHeaders())

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, env.notifications.marked)
			assert.Empty(t, env.events.events)
		})
	}
}
