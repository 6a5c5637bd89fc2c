package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-dispatch-go/internal/models"
)

// browserKeys returns a p256dh/auth pair shaped like a browser PushSubscription.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth)
}

func readyManager(t *testing.T) *CredentialManager {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	m := NewCredentialManager(func(key string) (string, bool) {
		switch key {
		case "VAPID_PUBLIC_KEY":
			return public, true
		case "VAPID_PRIVATE_KEY":
			return private, true
		}
		return "", false
	})
	require.True(t, m.EnsureReady())
	return m
}

func TestWebPushSender_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		wantGone bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: true, wantGone: true},
		{name: "not found", status: http.StatusNotFound, wantErr: true, wantGone: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotTTL string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotTTL = r.Header.Get("TTL")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p256dh, auth := browserKeys(t)
			sender := NewWebPushSender(readyManager(t), 300, 5*time.Second)

			err := sender.Send(context.Background(), models.Subscription{
				UserID:   "u1",
				Endpoint: srv.URL + "/push/abc",
				P256dh:   p256dh,
				Auth:     auth,
			}, []byte(`{"title":"hi"}`))

			assert.True(t, strings.HasPrefix(gotAuth, "vapid "), "request must carry a VAPID authorization header")
			assert.Equal(t, "300", gotTTL)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var de *DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.status, de.StatusCode)
			assert.Equal(t, tt.wantGone, errors.Is(err, ErrSubscriptionGone))
		})
	}
}

func TestWebPushSender_NotConfigured(t *testing.T) {
	sender := NewWebPushSender(NewCredentialManager(func(string) (string, bool) { return "", false }), 60, time.Second)

	err := sender.Send(context.Background(), models.Subscription{Endpoint: "https://push.example/x"}, []byte("{}"))

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWebPushSender_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p256dh, auth := browserKeys(t)
	sender := NewWebPushSender(readyManager(t), 60, time.Second)

	err := sender.Send(context.Background(), models.Subscription{Endpoint: url, P256dh: p256dh, Auth: auth}, []byte("{}"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubscriptionGone)
}
