package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	resID := uploadResource(t, env, cred, "hello bytes")

	f, res, err := env.resources.GetPayload(ctx, cred, resID)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello bytes", string(data))
	assert.Equal(t, model.VariantImage, res.Variant.Type)
	assert.False(t, res.Used, "fresh resources start unclaimed")
}

func TestUploadDistinctIDsForIdenticalContent(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)

	a := uploadResource(t, env, cred, "same bytes")
	b := uploadResource(t, env, cred, "same bytes")
	assert.NotEqual(t, a, b, "ids are unpredictable, not content-addressed")
}

func TestUploadTooLargeLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()
	dir := env.resources.dir

	sessionID, err := env.resources.NewSession(ctx, cred, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	oversized := io.MultiReader(
		bytes.NewReader(make([]byte, MaxResourceBytes)),
		strings.NewReader("x"),
	)
	_, err = env.resources.Upload(ctx, cred, sessionID, oversized)
	require.ErrorIs(t, err, apperror.ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected upload must leave no file behind")
}

func TestUploadUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)

	_, err := env.resources.Upload(context.Background(), cred, 404, strings.NewReader("x"))
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUploadForeignSession(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner@example.com", model.PermUploadResource)
	other := env.register(t, "other@example.com", model.PermUploadResource)
	ctx := context.Background()

	sessionID, err := env.resources.NewSession(ctx, owner, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	_, err = env.resources.Upload(ctx, other, sessionID, strings.NewReader("x"))
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestSessionIsConsumedByUpload(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	sessionID, err := env.resources.NewSession(ctx, cred, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	_, err = env.resources.Upload(ctx, cred, sessionID, strings.NewReader("first"))
	require.NoError(t, err)

	_, err = env.resources.Upload(ctx, cred, sessionID, strings.NewReader("second"))
	require.ErrorIs(t, err, apperror.ErrNotFound, "a session is single use")
}

func TestUploadSessionExpires(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	sessionID, err := env.resources.NewSession(ctx, cred, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	env.resources.mu.Lock()
	sess := env.resources.sessions[sessionID]
	sess.created = sess.created.Add(-sessionTTL - time.Second)
	env.resources.sessions[sessionID] = sess
	env.resources.mu.Unlock()

	_, err = env.resources.Upload(ctx, cred, sessionID, strings.NewReader("late"))
	require.ErrorIs(t, err, apperror.ErrNotFound, "expired sessions are swept before lookup")

	entries, err := os.ReadDir(env.resources.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "an expired session must leave no file behind")
}

// failingInsertRepo rejects every insert with a conflict, passing all
// other calls through.
type failingInsertRepo struct {
	repository.ResourceRepository
}

func (r *failingInsertRepo) InsertResource(ctx context.Context, res *model.Resource) error {
	return apperror.Conflict("resource", uint64(res.ID))
}

func TestUploadInsertFailureKeepsExistingPayloads(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	existing := uploadResource(t, env, cred, "keep me")

	svc := NewResourceService(&failingInsertRepo{ResourceRepository: env.db}, env.guard, env.resources.dir, env.logger)
	sessionID, err := svc.NewSession(ctx, cred, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	_, err = svc.Upload(ctx, cred, sessionID, strings.NewReader("new bytes"))
	require.ErrorIs(t, err, apperror.ErrConflict)

	f, _, err := env.resources.GetPayload(ctx, cred, existing)
	require.NoError(t, err, "the earlier payload must survive a rejected insert")
	data, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	entries, err := os.ReadDir(env.resources.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the rejected upload must leave neither buffer nor payload")
}

func TestNewSessionValidatesVariant(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	cases := []model.Variant{
		{Type: model.VariantImage},                                      // no duration
		{Type: model.VariantPdf, Pages: 2, PageDurations: []uint32{5}},  // mismatched pages
		{Type: "wav"},                                                   // unknown type
	}
	for _, variant := range cases {
		_, err := env.resources.NewSession(ctx, cred, variant)
		require.ErrorIs(t, err, apperror.ErrValidation, "variant %+v", variant)
	}

	_, err := env.resources.NewSession(ctx, cred, model.Variant{
		Type: model.VariantPdf, Pages: 2, PageDurations: []uint32{5, 5},
	})
	require.NoError(t, err)
}

func TestUploadRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	nobody := env.register(t, "nobody@example.com")

	_, err := env.resources.NewSession(context.Background(), nobody, model.Variant{Type: model.VariantImage, Duration: 5})
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestResourceVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner@example.com", model.PermUploadResource, model.PermNewPost)
	screen := env.register(t, "screen@example.com", model.PermGetPubPost)
	nobody := env.register(t, "nobody@example.com")
	ctx := context.Background()

	resID := uploadResource(t, env, owner, "payload")

	// Unclaimed: only the owner sees it.
	_, err := env.resources.GetInfo(ctx, owner, resID)
	require.NoError(t, err)
	_, err = env.resources.GetInfo(ctx, screen, resID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.resources.GetInfo(ctx, nobody, resID)
	require.ErrorIs(t, err, apperror.ErrNotFound)

	// Once a post claims it, published-post readers may fetch it.
	today := model.Today()
	_, err = env.posts.Create(ctx, owner, "p", "", today, today.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	_, err = env.resources.GetInfo(ctx, screen, resID)
	require.NoError(t, err)
	_, err = env.resources.GetInfo(ctx, nobody, resID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDestroyRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	cred := env.register(t, "u@example.com", model.PermUploadResource)
	ctx := context.Background()

	resID := uploadResource(t, env, cred, "bye")
	path := filepath.Join(env.resources.dir, "r_"+resID.String())
	_, err := os.Stat(path)
	require.NoError(t, err, "payload file should exist after upload")

	require.NoError(t, env.resources.Destroy(ctx, resID))

	_, err = env.db.GetResource(ctx, resID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "payload file should be gone")
}
