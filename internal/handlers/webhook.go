package handlers

import (
	"errors"
	"net/http"

	"push-dispatch-go/internal/models"
	"push-dispatch-go/internal/push"
)

// webhookPayload is the database change envelope posted on notification insert.
type webhookPayload struct {
	Type   string         `json:"type"`
	Table  string         `json:"table"`
	Record *webhookRecord `json:"record" validate:"required"`
}

type webhookRecord struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id" validate:"required"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	Type           string `json:"type"`
	RelatedSquadID string `json:"related_squad_id"`
	RelatedCheckID string `json:"related_check_id"`
	RelatedUserID  string `json:"related_user_id"`
}

func (rec webhookRecord) notification() models.Notification {
	return models.Notification{
		ID:             rec.ID,
		UserID:         rec.UserID,
		Title:          rec.Title,
		Body:           rec.Body,
		Type:           rec.Type,
		RelatedSquadID: rec.RelatedSquadID,
		RelatedCheckID: rec.RelatedCheckID,
		RelatedUserID:  rec.RelatedUserID,
	}
}

// WebhookHandler delivers one freshly inserted notification record.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	// Authenticate before touching the dedup cache.
	if !validateSharedSecret(r, h.webhookSecret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload webhookPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	n := payload.Record.notification()
	if n.ID != "" && h.dedup.Seen(n.ID, h.now()) {
		h.metrics.DuplicateHit()
		h.logger.Infow("duplicate webhook ignored", "notification_id", n.ID, "table", payload.Table)
		writeJSON(w, http.StatusOK, map[string]any{"sent": 0, "duplicate": true})
		return
	}

	sent, err := h.dispatcher.Dispatch(r.Context(), n)
	if err != nil {
		if errors.Is(err, push.ErrMissingRecipient) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Errorw("webhook dispatch failed", "notification_id", n.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to dispatch notification")
		return
	}

	h.afterDispatch(r.Context(), n, "webhook", sent)
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
