package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/service"
)

// AccountHandler exposes the account surface: registration, sessions,
// profile changes and permission delegation.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// HandleSendCaptcha issues and mails a registration captcha.
//
// POST /account/send-captcha {"email": "..."}
func (h *AccountHandler) HandleSendCaptcha(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.SendCaptcha(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegister redeems a captcha and materializes the account.
//
// PUT /account/register
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string     `json:"email"`
		Name     string     `json:"name"`
		SchoolID string     `json:"schoolId"`
		Phone    string     `json:"phone"`
		Password string     `json:"password"`
		Captcha  string     `json:"captcha"`
		Tags     model.Tags `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Email, req.Name, req.SchoolID, req.Phone, req.Password, req.Captcha, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID model.ID `json:"id"`
	}{account.ID})
}

// HandleLogin issues a session token.
//
// POST /account/login {"email": "...", "password": "..."}
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, token, expireAt, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID       model.ID   `json:"id"`
		Token    string     `json:"token"`
		ExpireAt *time.Time `json:"expireAt"`
	}{id, token, expireAt})
}

// HandleLogout revokes the presented token.
//
// POST /account/logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.Logout(r.Context(), cred); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendResetPasswordCaptcha mails a password-reset captcha.
//
// POST /account/send-reset-password-captcha {"email": "..."}
func (h *AccountHandler) HandleSendResetPasswordCaptcha(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.SendResetPasswordCaptcha(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPassword redeems a reset captcha and replaces the
// password, revoking all sessions.
//
// PATCH /account/reset-password
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Captcha  string `json:"captcha"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req.Email, req.Captcha, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleModify patches the caller's own account.
//
// PATCH /account/modify
func (h *AccountHandler) HandleModify(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Name            *string `json:"name"`
		SchoolID        *string `json:"schoolId"`
		Phone           *string `json:"phone"`
		TokenExpirySecs *uint64 `json:"tokenExpirySecs"`
		Password        *struct {
			Old string `json:"old"`
			New string `json:"new"`
		} `json:"password"`
		Departments *[]string `json:"departments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := service.AccountPatch{
		Name:            req.Name,
		SchoolID:        req.SchoolID,
		Phone:           req.Phone,
		TokenExpirySecs: req.TokenExpirySecs,
		Departments:     req.Departments,
	}
	if req.Password != nil {
		patch.Password = &service.PasswordChange{Old: req.Password.Old, New: req.Password.New}
	}

	if err := h.accounts.Modify(r.Context(), cred, patch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPermissions replaces the target's permission grant.
//
// PATCH /account/set-permissions {"target": ..., "permissions": [...]}
func (h *AccountHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	cred, err := credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Target      model.ID           `json:"target"`
		Permissions []model.Permission `json:"permissions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.accounts.SetPermissions(r.Context(), cred, req.Target, req.Permissions); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet returns one account view.
//
// GET /account/get/{id}
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.accounts.GetInfo(r.Context(), cred, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleBulkGet returns simple views for a list of account ids.
//
// POST /account/bulk-get {"ids": [...]}
func (h *AccountHandler) HandleBulkGet(w http.ResponseWriter, r *http.Request) {
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

	views, err := h.accounts.BulkGetInfo(r.Context(), cred, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
