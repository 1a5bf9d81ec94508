package handler

import (
	"log/slog"
	"net/http"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/service"
)

// PostHandler exposes the post workflow.
type PostHandler struct {
	posts  *service.PostService
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

// HandleNew creates a post in the pending state.
//
// PUT /post/new
func (h *PostHandler) HandleNew(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Title     string         `json:"title"`
		Notes     string         `json:"notes"`
		Start     model.Date     `json:"start"`
		End       model.Date     `json:"end"`
		Resources []model.ID     `json:"resources"`
		Grouped   bool           `json:"grouped"`
		Priority  model.Priority `json:"priority"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Create(r.Context(), cred, req.Title, req.Notes, req.Start, req.End, req.Resources, req.Grouped, req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID model.ID `json:"id"`
	}{post.ID})
}

// HandleModify patches the caller's own post, returning it to the
// pending state.
//
// PATCH /post/modify/{id}
func (h *PostHandler) HandleModify(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Title     *string         `json:"title"`
		Start     *model.Date     `json:"start"`
		End       *model.Date     `json:"end"`
		Grouped   *bool           `json:"grouped"`
		Priority  *model.Priority `json:"priority"`
		Resources *[]model.ID     `json:"resources"`
		Message   string          `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := service.PostPatch{
		Title:     req.Title,
		Start:     req.Start,
		End:       req.End,
		Grouped:   req.Grouped,
		Priority:  req.Priority,
		Resources: req.Resources,
		Message:   req.Message,
	}
	if err := h.posts.Modify(r.Context(), cred, id, patch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReview appends a review outcome.
//
// PATCH /post/review/{id} {"status": "approved"|"rejected", "message": "..."}
func (h *PostHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Status  model.Status `json:"status"`
		Message string       `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.posts.Review(r.Context(), cred, id, req.Status, req.Message); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a post and destroys its resources.
//
// DELETE /post/delete/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.posts.Remove(r.Context(), cred, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBulkDelete removes a list of posts.
//
// DELETE /post/bulk-delete {"ids": [...]}
func (h *PostHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.posts.BulkRemove(r.Context(), cred, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBulkRemoveUnused sweeps posts fully elapsed before the cutoff.
//
// POST /post/bulk-remove-unused {"cutoff": "2006-01-02"}
func (h *PostHandler) HandleBulkRemoveUnused(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Cutoff model.Date `json:"cutoff"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Cutoff.IsZero() {
		writeError(w, apperror.ValidationFailed("cutoff", "cutoff date is required"))
		return
	}

	removed, err := h.posts.BulkRemoveUnused(r.Context(), cred, req.Cutoff)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Removed int `json:"removed"`
	}{removed})
}

// HandleFilter lists the posts visible to the caller.
//
// GET /post/filter?after=<id>&creator=<id>&approved=<bool>&date=<date>&limit=<n>
func (h *PostHandler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var q service.PostQuery
	query := r.URL.Query()
	if v := query.Get("after"); v != "" {
		id, err := model.ParseID(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("after", "invalid id"))
			return
		}
		q.AfterID = &id
	}
	if v := query.Get("creator"); v != "" {
		id, err := model.ParseID(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("creator", "invalid id"))
			return
		}
		q.Creator = &id
	}
	if v := query.Get("approved"); v != "" {
		approved := v == "true"
		q.Approved = &approved
	}
	if v := query.Get("date"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("date", "invalid date"))
			return
		}
		q.Date = &d
	}
	if v := query.Get("limit"); v != "" {
		limit, err := parsePositiveInt(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("limit", "invalid limit"))
			return
		}
		q.Limit = limit
	}

	posts, err := h.posts.Filter(r.Context(), cred, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleGet returns one post.
//
// GET /post/get/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	post, err := h.posts.Get(r.Context(), cred, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleBulkGet returns the visible subset of the requested posts.
//
// POST /post/bulk-get {"ids": [...]}
func (h *PostHandler) HandleBulkGet(w http.ResponseWriter, r *http.Request) {
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

	posts, err := h.posts.BulkGet(r.Context(), cred, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
