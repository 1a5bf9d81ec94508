package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/service"
)

// ResourceHandler exposes the resource upload and read surface.
type ResourceHandler struct {
	resources *service.ResourceService
	logger    *slog.Logger
}

func NewResourceHandler(resources *service.ResourceService, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{resources: resources, logger: logger}
}

// HandleNewSession opens an upload session.
//
// POST /resource/new-session {"variant": {...}}
func (h *ResourceHandler) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Variant model.Variant `json:"variant"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sessionID, err := h.resources.NewSession(r.Context(), cred, req.Variant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Session model.ID `json:"session"`
	}{sessionID})
}

// HandleUpload streams the raw request body as the session's payload
// and commits the resource.
//
// POST /resource/upload/{session}
func (h *ResourceHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sessionID, err := pathID(r, "session")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.resources.Upload(r.Context(), cred, sessionID, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID model.ID `json:"id"`
	}{res.ID})
}

// HandlePayload streams the resource bytes.
//
// GET /resource/payload/{id}
func (h *ResourceHandler) HandlePayload(w http.ResponseWriter, r *http.Request) {
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

	f, _, err := h.resources.GetPayload(r.Context(), cred, id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("streaming resource payload",
			slog.String("resource", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// HandleGet returns the resource record.
//
// GET /resource/get/{id}
func (h *ResourceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.resources.GetInfo(r.Context(), cred, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleBulkGet returns the visible subset of the requested resources.
//
// POST /resource/bulk-get {"ids": [...]}
func (h *ResourceHandler) HandleBulkGet(w http.ResponseWriter, r *http.Request) {
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

	out, err := h.resources.BulkGetInfo(r.Context(), cred, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
