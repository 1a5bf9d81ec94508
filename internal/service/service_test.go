package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/mailer"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository/sqlite"
)

// testEnv wires the full service stack against an in-memory database,
// a capture mailer and a temp resource directory.
type testEnv struct {
	db            *sqlite.DB
	mail          *mailer.Capture
	guard         *auth.Guard
	logger        *slog.Logger
	accounts      *AccountService
	posts         *PostService
	resources     *ResourceService
	notifications *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars")
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	guard := auth.NewGuard(db, tokens)
	mail := mailer.NewCapture()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resources := NewResourceService(db, guard, t.TempDir(), logger)
	return &testEnv{
		db:            db,
		mail:          mail,
		guard:         guard,
		logger:        logger,
		accounts:      NewAccountService(db, passwords, tokens, guard, mail, logger),
		posts:         NewPostService(db, resources, guard, logger),
		resources:     resources,
		notifications: NewNotificationService(db, guard, logger),
	}
}

func authCred(id model.ID, token string) auth.Credential {
	return auth.Credential{Account: id, Token: token}
}

// register walks the full captcha flow for the email, grants the given
// permissions directly on the stored record and logs in.
func (e *testEnv) register(t *testing.T, email string, perms ...model.Permission) auth.Credential {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.accounts.SendCaptcha(ctx, email))
	captcha, ok := e.mail.Last(email)
	require.True(t, ok, "captcha should have been captured")

	account, err := e.accounts.Register(ctx, email, "Test User", "20240001", "", "password", captcha, model.NewTags())
	require.NoError(t, err)

	if len(perms) > 0 {
		account.Tags.SetPermissions(perms)
		require.NoError(t, e.db.UpdateAccount(ctx, account))
	}

	id, token, _, err := e.accounts.Login(ctx, email, "password")
	require.NoError(t, err)
	return auth.Credential{Account: id, Token: token}
}
