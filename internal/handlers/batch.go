package handlers

import (
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"push-dispatch-go/internal/models"
)

// batchRequest names exactly one correlation id.
type batchRequest struct {
	CheckID string     `json:"checkId" validate:"required_without=SquadID,excluded_with=SquadID"`
	SquadID string     `json:"squadId"`
	Since   *time.Time `json:"since"`
}

// BatchHandler flushes every pending notification tied to a check or squad
// after the caller acted on it.
func (h *Handler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	records, err := h.notifications.ListPendingNotifications(ctx, models.NotificationFilter{
		CheckID: req.CheckID,
		SquadID: req.SquadID,
		Since:   req.Since,
	})
	if err != nil {
		h.logger.Errorw("failed to load pending notifications", "check_id", req.CheckID, "squad_id", req.SquadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"sent": 0})
		return
	}

	// One slot per record; a failed record keeps its zero count.
	counts := make([]int, len(records))
	var g errgroup.Group
	g.SetLimit(h.batchLimit)
	for i, n := range records {
		g.Go(func() error {
			sent, err := h.dispatcher.Dispatch(ctx, n)
			if err != nil {
				h.logger.Warnw("batch record dispatch failed", "notification_id", n.ID, "error", err)
				return nil
			}
			counts[i] = sent
			h.afterDispatch(ctx, n, "batch", sent)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}

	h.logger.Infow("batch dispatched",
		"caller", CurrentUser(r),
		"check_id", req.CheckID,
		"squad_id", req.SquadID,
		"records", len(records),
		"sent", total,
	)
	writeJSON(w, http.StatusOK, map[string]int{"sent": total})
}
