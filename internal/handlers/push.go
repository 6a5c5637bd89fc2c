package handlers

import (
	"net/http"

	"push-dispatch-go/internal/models"
)

type subscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// GetVAPIDKeyHandler returns the public VAPID key
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.creds.Identity()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": id.PublicKey})
}

// SubscribePushHandler saves or refreshes the caller's push subscription
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	sub := models.Subscription{
		UserID:   CurrentUser(r),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.subs.UpsertSubscription(r.Context(), sub); err != nil {
		h.logger.Errorw("failed to save subscription", "user_id", sub.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribePushHandler removes one of the caller's subscriptions
func (h *Handler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	userID := CurrentUser(r)
	if err := h.subs.DeleteSubscription(r.Context(), userID, req.Endpoint); err != nil {
		h.logger.Errorw("failed to delete subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
