package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/service"
)

// NotificationHandler exposes the notification surface.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// HandleNotify publishes a notification.
//
// POST /notification/notify {"title": ..., "body": ..., "time": ...}
func (h *NotificationHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Title string    `json:"title"`
		Body  string    `json:"body"`
		Time  time.Time `json:"time"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Time.IsZero() {
		req.Time = time.Now()
	}

	n, err := h.notifications.Notify(r.Context(), cred, req.Title, req.Body, req.Time)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID model.ID `json:"id"`
	}{n.ID})
}

// HandleDelete removes a notification.
//
// DELETE /notification/delete/{id}
func (h *NotificationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notifications.Remove(r.Context(), cred, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFilter lists notifications within a date window.
//
// GET /notification/filter?after=<date>&before=<date>&sender=<id>&after-id=<id>&limit=<n>
func (h *NotificationHandler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var q service.NotificationQuery
	query := r.URL.Query()
	if v := query.Get("after-id"); v != "" {
		id, err := model.ParseID(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("after-id", "invalid id"))
			return
		}
		q.AfterID = &id
	}
	if v := query.Get("sender"); v != "" {
		id, err := model.ParseID(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("sender", "invalid id"))
			return
		}
		q.Sender = &id
	}
	if v := query.Get("after"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("after", "invalid date"))
			return
		}
		q.After = &d
	}
	if v := query.Get("before"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("before", "invalid date"))
			return
		}
		q.Before = &d
	}
	if v := query.Get("limit"); v != "" {
		limit, err := parsePositiveInt(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("limit", "invalid limit"))
			return
		}
		q.Limit = limit
	}

	views, err := h.notifications.Filter(r.Context(), cred, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet returns one notification view.
//
// GET /notification/get/{id}
func (h *NotificationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.notifications.GetInfo(r.Context(), cred, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleBulkGet returns views for a list of notification ids.
//
// POST /notification/bulk-get {"ids": [...]}
func (h *NotificationHandler) HandleBulkGet(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		IDs []model.ID `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	views, err := h.notifications.BulkGetInfo(r.Context(), cred, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
