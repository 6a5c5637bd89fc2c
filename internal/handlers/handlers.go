package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"push-dispatch-go/internal/models"
	"push-dispatch-go/internal/push"
	"push-dispatch-go/internal/store"
)

const maxBodyBytes = 1 << 20

// Dispatcher is the single fan-out entry point both ingress paths converge on.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) (int, error)
}

// Deduper gates webhook redeliveries of the same record.
type Deduper interface {
	Seen(id string, now time.Time) bool
}

type EventPublisher interface {
	PublishDispatch(ctx context.Context, ev models.DispatchEvent) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context) *redis.PubSub
}

// Deps lists the collaborators of a Handler. Events and Stream are optional.
type Deps struct {
	Subscriptions store.SubscriptionStore
	Notifications store.NotificationStore
	Dispatcher    Dispatcher
	Dedup         Deduper
	Credentials   *push.CredentialManager
	Auth          *Authenticator
	Events        EventPublisher
	Stream        EventSubscriber
	Metrics       *push.Metrics
	Logger        *zap.SugaredLogger
	WebhookSecret string

	// BatchConcurrency bounds how many records of one batch dispatch at once.
	BatchConcurrency int
}

type Handler struct {
	subs          store.SubscriptionStore
	notifications store.NotificationStore
	dispatcher    Dispatcher
	dedup         Deduper
	creds         *push.CredentialManager
	auth          *Authenticator
	events        EventPublisher
	stream        EventSubscriber
	metrics       *push.Metrics
	logger        *zap.SugaredLogger
	webhookSecret string
	batchLimit    int
	validate      *validator.Validate
	now           func() time.Time
}

func NewHandler(d Deps) *Handler {
	if d.BatchConcurrency <= 0 {
		d.BatchConcurrency = 4
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Handler{
		subs:          d.Subscriptions,
		notifications: d.Notifications,
		dispatcher:    d.Dispatcher,
		dedup:         d.Dedup,
		creds:         d.Credentials,
		auth:          d.Auth,
		events:        d.Events,
		stream:        d.Stream,
		metrics:       d.Metrics,
		logger:        d.Logger,
		webhookSecret: d.WebhookSecret,
		batchLimit:    d.BatchConcurrency,
		validate:      newValidator(),
		now:           time.Now,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Delivery paths
	mux.HandleFunc("POST /api/push/webhook", h.RequirePush(h.WebhookHandler))
	mux.HandleFunc("POST /api/push/batch", h.RequirePush(h.RequireUser(h.BatchHandler)))
	mux.HandleFunc("GET /api/push/vapid-public-key", h.RequirePush(h.GetVAPIDKeyHandler))

	// Subscription management
	mux.HandleFunc("POST /api/push/subscriptions", h.RequireUser(h.SubscribePushHandler))
	mux.HandleFunc("DELETE /api/push/subscriptions", h.RequireUser(h.UnsubscribePushHandler))

	mux.HandleFunc("GET /api/push/events", h.RequireUser(h.SSEHandler))
	mux.HandleFunc("GET /healthz", h.HealthHandler)
}

// RequirePush rejects the request with 503 until a signing identity is installed.
func (h *Handler) RequirePush(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.creds.EnsureReady() {
			writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
			return
		}
		next(w, r)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	_, ready := h.creds.Identity()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"push_ready": ready,
	})
}

// afterDispatch records a successful dispatch. Both steps are best effort.
func (h *Handler) afterDispatch(ctx context.Context, n models.Notification, source string, sent int) {
	if n.ID != "" {
		if err := h.notifications.MarkNotificationsDispatched(ctx, []string{n.ID}); err != nil {
			h.logger.Warnw("failed to mark notification dispatched", "notification_id", n.ID, "error", err)
		}
	}

	if h.events == nil {
		return
	}
	ev := models.DispatchEvent{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Source:         source,
		Sent:           sent,
		CreatedAt:      h.now().UTC(),
	}
	if err := h.events.PublishDispatch(ctx, ev); err != nil {
		h.logger.Warnw("failed to publish dispatch event", "notification_id", n.ID, "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into one client-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	// Drop the top-level struct name from the namespace.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without", "excluded_with":
		return "exactly one of checkId or squadId is required"
	default:
		return field + " is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
