// Package service contains the business logic layer: validation,
// permission enforcement and orchestration across repositories.
// Services accept primitives and domain types, never HTTP types, and
// return apperror domain errors for the handlers to translate.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/mailer"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

// Captcha mail event labels, interpolated into the message body.
const (
	eventSignUp        = "signing up"
	eventResetPassword = "resetting password"
)

// accountStore is the combined persistence surface the account service
// needs: verified and pending records live side by side and share the
// email-derived id space.
type accountStore interface {
	repository.AccountRepository
	repository.UnverifiedRepository
}

// AccountService handles registration, sessions and account data.
type AccountService struct {
	store     accountStore
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	guard     *auth.Guard
	mail      mailer.Mailer
	logger    *slog.Logger
}

func NewAccountService(store accountStore, passwords *auth.PasswordService, tokens *auth.TokenService, guard *auth.Guard, mail mailer.Mailer, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		guard:     guard,
		mail:      mail,
		logger:    logger,
	}
}

// SendCaptcha issues (or re-issues, after the cooldown) a registration
// captcha for the email and delivers it. Fails if a verified account
// already exists for the address.
func (s *AccountService) SendCaptcha(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return apperror.ValidationFailed("email", "invalid email address")
	}

	id := model.EmailID(email)
	if _, err := s.store.GetAccount(ctx, id); err == nil {
		return apperror.Forbidden("account already exists for this email")
	}

	unverified, err := s.store.GetUnverified(ctx, id)
	fresh := false
	if err != nil {
		unverified = model.NewUnverified(email)
		fresh = true
	}

	captcha, err := unverified.Verify.Issue(time.Now())
	if err != nil {
		return err
	}

	// Persist before delivery: a transport failure must not roll the
	// cooldown back, and the issued captcha stays redeemable.
	if fresh {
		err = s.store.InsertUnverified(ctx, unverified)
	} else {
		err = s.store.UpdateUnverified(ctx, unverified)
	}
	if err != nil {
		return err
	}

	if err := s.mail.SendCaptcha(unverified.Email, eventSignUp, captcha); err != nil {
		s.logger.Error("captcha delivery failed",
			slog.String("account", id.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sending captcha mail: %w", err)
	}

	s.logger.Info("captcha sent", slog.String("account", id.String()))
	return nil
}

// Register consumes the pending registration for the email and
// materializes a verified account. A captcha mismatch is side-effect
// free: the pending record and its captcha stay valid for retry.
func (s *AccountService) Register(ctx context.Context, email, name, schoolID, phone, password, captcha string, tags model.Tags) (*model.Account, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if strings.TrimSpace(schoolID) == "" {
		return nil, apperror.ValidationFailed("schoolId", "school id is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	id := model.EmailID(email)
	unverified, err := s.store.GetUnverified(ctx, id)
	if err != nil {
		return nil, err
	}
	if !unverified.Verify.Matches(captcha) {
		return nil, apperror.Forbidden("captcha incorrect")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	tags.RetainUserDefinable()
	tags.InitializePermissions()

	account := &model.Account{
		ID:           unverified.ID,
		Email:        unverified.Email,
		Name:         strings.TrimSpace(name),
		SchoolID:     strings.TrimSpace(schoolID),
		Phone:        strings.TrimSpace(phone),
		PasswordHash: hash,
		Tags:         tags,
	}
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}

	// The pending record is consumed; a stale leftover would let the
	// same captcha register twice.
	if err := s.store.DeleteUnverified(ctx, id); err != nil {
		s.logger.Error("deleting consumed unverified record",
			slog.String("account", id.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("account registered", slog.String("account", id.String()))
	return account, nil
}

// Login verifies credentials and issues a session token. Unknown
// account and wrong password surface as the same generic failure.
func (s *AccountService) Login(ctx context.Context, email, password string) (model.ID, string, *time.Time, error) {
	id := model.EmailID(email)
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return 0, "", nil, apperror.Unauthorized("credentials incorrect")
	}
	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		return 0, "", nil, apperror.Unauthorized("credentials incorrect")
	}

	now := time.Now()
	account.PruneTokens(now)

	jti := uuid.NewString()
	expireAt := account.AddToken(jti, now)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return 0, "", nil, err
	}

	token, err := s.tokens.Issue(account.ID, jti, expireAt)
	if err != nil {
		return 0, "", nil, err
	}

	s.logger.Info("login", slog.String("account", id.String()))
	return account.ID, token, expireAt, nil
}

// Logout revokes exactly the presented token; other sessions on the
// account stay valid.
func (s *AccountService) Logout(ctx context.Context, cred auth.Credential) error {
	tokenAccount, jti, err := s.tokens.Validate(cred.Token)
	if err != nil || tokenAccount != cred.Account {
		return apperror.Unauthorized("token is not valid")
	}

	account, err := s.store.GetAccount(ctx, cred.Account)
	if err != nil {
		return apperror.Unauthorized("token is not valid")
	}
	if err := account.RemoveToken(jti, time.Now()); err != nil {
		return err
	}
	return s.store.UpdateAccount(ctx, account)
}

// SendResetPasswordCaptcha issues a password-reset captcha on the
// verified account and delivers it, under the same cooldown rules as
// registration captchas.
func (s *AccountService) SendResetPasswordCaptcha(ctx context.Context, email string) error {
	account, err := s.store.GetAccount(ctx, model.EmailID(email))
	if err != nil {
		return err
	}

	if account.ResetVerify == nil {
		account.ResetVerify = &model.VerifyContext{}
	}
	captcha, err := account.ResetVerify.Issue(time.Now())
	if err != nil {
		return err
	}
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return err
	}

	if err := s.mail.SendCaptcha(account.Email, eventResetPassword, captcha); err != nil {
		s.logger.Error("captcha delivery failed",
			slog.String("account", account.ID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sending captcha mail: %w", err)
	}
	return nil
}

// ResetPassword replaces the password after a captcha check and
// revokes every active session on the account.
func (s *AccountService) ResetPassword(ctx context.Context, email, captcha, newPassword string) error {
	if newPassword == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	account, err := s.store.GetAccount(ctx, model.EmailID(email))
	if err != nil {
		return err
	}
	if account.ResetVerify == nil || !account.ResetVerify.Matches(captcha) {
		return apperror.Forbidden("captcha incorrect")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	account.ResetVerify = nil
	account.ClearTokens()

	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return err
	}
	s.logger.Info("password reset", slog.String("account", account.ID.String()))
	return nil
}

// PasswordChange pairs the old and new password for a modify request.
type PasswordChange struct {
	Old string
	New string
}

// AccountPatch holds the caller-changeable account fields; nil fields
// are left untouched.
type AccountPatch struct {
	Name            *string
	SchoolID        *string
	Phone           *string
	TokenExpirySecs *uint64
	Password        *PasswordChange
	Departments     *[]string
}

// Modify applies a patch to the caller's own account. A password
// change requires the current password to match.
func (s *AccountService) Modify(ctx context.Context, cred auth.Credential, patch AccountPatch) error {
	account, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return apperror.ValidationFailed("name", "name is required")
		}
		account.Name = name
	}
	if patch.SchoolID != nil {
		account.SchoolID = strings.TrimSpace(*patch.SchoolID)
	}
	if patch.Phone != nil {
		account.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.TokenExpirySecs != nil {
		account.TokenExpirySecs = *patch.TokenExpirySecs
	}
	if patch.Password != nil {
		if err := s.passwords.Verify(account.PasswordHash, patch.Password.Old); err != nil {
			return apperror.Forbidden("old password incorrect")
		}
		hash, err := s.passwords.Hash(patch.Password.New)
		if err != nil {
			return err
		}
		account.PasswordHash = hash
	}
	if patch.Departments != nil {
		account.Tags.ClearEntry(model.EntryDepartment)
		for _, d := range *patch.Departments {
			account.Tags.Insert(model.EntryDepartment, d)
		}
	}

	return s.store.UpdateAccount(ctx, account)
}

// SetPermissions replaces the target's permission set with exactly the
// intersection of the requested set and the operator's own grant.
// Delegation can never exceed the delegator, and an operator cannot
// overwrite an account already holding permissions outside the
// operator's grant.
func (s *AccountService) SetPermissions(ctx context.Context, cred auth.Credential, targetID model.ID, requested []model.Permission) error {
	operator, err := s.guard.Authorize(ctx, cred, model.PermSetPermissions)
	if err != nil {
		return err
	}

	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		return err
	}
	if !target.Tags.PermissionsSubsetOf(&operator.Tags) {
		return apperror.Forbidden("target holds permissions outside your own grant")
	}

	// A nil permission map means the operator's grant is unrestricted.
	operatorPerms := operator.Tags.Permissions()
	granted := make([]model.Permission, 0, len(requested))
	for _, p := range requested {
		if operatorPerms == nil {
			granted = append(granted, p)
			continue
		}
		if _, ok := operatorPerms[p]; ok {
			granted = append(granted, p)
		}
	}
	target.Tags.SetPermissions(granted)

	if err := s.store.UpdateAccount(ctx, target); err != nil {
		return err
	}
	s.logger.Info("permissions set",
		slog.String("operator", operator.ID.String()),
		slog.String("target", targetID.String()),
		slog.Int("granted", len(granted)),
	)
	return nil
}

// AccountView is the externally visible projection of an account. The
// fields present depend on the caller's relation to the account.
type AccountView struct {
	ID       model.ID    `json:"id"`
	Name     string      `json:"name"`
	Email    string      `json:"email,omitempty"`
	SchoolID string      `json:"schoolId,omitempty"`
	Phone    string      `json:"phone,omitempty"`
	Tags     *model.Tags `json:"tags,omitempty"`

	TokenExpirySecs *uint64 `json:"tokenExpirySecs,omitempty"`
}

func simpleView(a *model.Account) AccountView {
	return AccountView{ID: a.ID, Name: a.Name}
}

func fullView(a *model.Account) AccountView {
	return AccountView{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		SchoolID: a.SchoolID,
		Phone:    a.Phone,
		Tags:     &a.Tags,
	}
}

func ownedView(a *model.Account) AccountView {
	v := fullView(a)
	v.TokenExpirySecs = &a.TokenExpirySecs
	return v
}

// GetInfo returns the richest view of the target the caller is
// entitled to: owned for the caller's own account, full with the
// view-full permission, simple with the view-simple permission.
func (s *AccountService) GetInfo(ctx context.Context, cred auth.Credential, targetID model.ID) (AccountView, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return AccountView{}, err
	}

	if targetID == caller.ID {
		return ownedView(caller), nil
	}

	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		return AccountView{}, err
	}
	switch {
	case caller.Tags.ContainsPermission(model.PermViewFull):
		return fullView(target), nil
	case caller.Tags.ContainsPermission(model.PermViewSimple):
		return simpleView(target), nil
	default:
		return AccountView{}, apperror.Forbidden("missing permission to view accounts")
	}
}

// BulkGetInfo returns simple views for the requested ids. Missing
// accounts are skipped rather than failing the batch.
func (s *AccountService) BulkGetInfo(ctx context.Context, cred auth.Credential, ids []model.ID) ([]AccountView, error) {
	if _, err := s.guard.Authorize(ctx, cred, model.PermViewSimple); err != nil {
		return nil, err
	}

	views := make([]AccountView, 0, len(ids))
	for _, id := range ids {
		account, err := s.store.GetAccount(ctx, id)
		if err != nil {
			continue
		}
		views = append(views, simpleView(account))
	}
	return views, nil
}
