package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"push-dispatch-go/internal/models"
)

// WebPushSender delivers one encrypted payload to one subscription using the
// identity installed in the CredentialManager.
type WebPushSender struct {
	creds  *CredentialManager
	ttl    int
	client *http.Client
}

func NewWebPushSender(creds *CredentialManager, ttl int, timeout time.Duration) *WebPushSender {
	return &WebPushSender{
		creds:  creds,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub models.Subscription, payload []byte) error {
	id, ok := s.creds.Identity()
	if !ok {
		return ErrNotConfigured
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      id.Subject,
		VAPIDPublicKey:  id.PublicKey,
		VAPIDPrivateKey: id.PrivateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
}
