package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/model"
)

// uploadResource runs the full session-and-upload flow and returns the
// committed resource id.
func uploadResource(t *testing.T, env *testEnv, cred auth.Credential, payload string) model.ID {
	t.Helper()
	ctx := context.Background()

	sessionID, err := env.resources.NewSession(ctx, cred, model.Variant{Type: model.VariantImage, Duration: 5})
	require.NoError(t, err)

	res, err := env.resources.Upload(ctx, cred, sessionID, bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	return res.ID
}

func creatorCred(t *testing.T, env *testEnv, email string) auth.Credential {
	t.Helper()
	return env.register(t, email, model.PermNewPost, model.PermUploadResource)
}

func TestCreatePostClaimsResources(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	ctx := context.Background()

	resID := uploadResource(t, env, cred, "payload")
	start := model.Today()

	post, err := env.posts.Create(ctx, cred, "hello", "first", start, start.AddDays(3), []model.ID{resID}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, post.Status())
	assert.Equal(t, model.PriorityNormal, post.Priority, "priority defaults to normal")

	res, err := env.db.GetResource(ctx, resID)
	require.NoError(t, err)
	assert.True(t, res.Used, "created post must claim its resources")
}

func TestCreatePostSpanBoundary(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, cred, "a")
	_, err := env.posts.Create(ctx, cred, "too long", "", start, start.AddDays(8), []model.ID{resID}, false, 0)
	require.ErrorIs(t, err, apperror.ErrValidation)

	// Exactly one week is legal.
	_, err = env.posts.Create(ctx, cred, "one week", "", start, start.AddDays(7), []model.ID{resID}, false, 0)
	require.NoError(t, err)
}

func TestCreatePostEmptyResources(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	start := model.Today()

	_, err := env.posts.Create(context.Background(), cred, "empty", "", start, start.AddDays(1), nil, false, 0)
	require.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreatePostForeignResourceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	owner := creatorCred(t, env, "owner@example.com")
	thief := creatorCred(t, env, "thief@example.com")
	ctx := context.Background()
	start := model.Today()

	mine := uploadResource(t, env, thief, "mine")
	foreign := uploadResource(t, env, owner, "foreign")

	_, err := env.posts.Create(ctx, thief, "steal", "", start, start.AddDays(1), []model.ID{mine, foreign}, false, 0)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	// The claim on the first resource was compensated.
	res, err := env.db.GetResource(ctx, mine)
	require.NoError(t, err)
	assert.False(t, res.Used, "partial claims must be released on failure")
}

func TestClaimedResourceRejectsSecondPost(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, cred, "shared")
	_, err := env.posts.Create(ctx, cred, "first", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	_, err = env.posts.Create(ctx, cred, "second", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
	require.ErrorIs(t, err, apperror.ErrConflict, "a claimed resource can never be claimed again")
}

func TestConcurrentCreateClaimsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, cred, "contended")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.posts.Create(ctx, cred, "race", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, apperror.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent creation may win the resource")
}

func TestReviewWorkflow(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	reviewer := env.register(t, "r@example.com", model.PermReviewPost)
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, creator, "x")
	post, err := env.posts.Create(ctx, creator, "p", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	require.NoError(t, env.posts.Review(ctx, reviewer, post.ID, model.StatusApproved, "ok"))

	err = env.posts.Review(ctx, reviewer, post.ID, model.StatusApproved, "again")
	require.ErrorIs(t, err, apperror.ErrValidation, "same outcome twice is redundant")

	require.NoError(t, env.posts.Review(ctx, reviewer, post.ID, model.StatusRejected, "no"))
	require.NoError(t, env.posts.Review(ctx, reviewer, post.ID, model.StatusApproved, "yes"))

	// The creator cannot review without the permission.
	err = env.posts.Review(ctx, creator, post.ID, model.StatusRejected, "")
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestModifyResubmitsAndSwapsResources(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	reviewer := env.register(t, "r@example.com", model.PermReviewPost)
	ctx := context.Background()
	start := model.Today()

	oldRes := uploadResource(t, env, creator, "old")
	newRes := uploadResource(t, env, creator, "new")

	post, err := env.posts.Create(ctx, creator, "p", "", start, start.AddDays(1), []model.ID{oldRes}, false, 0)
	require.NoError(t, err)
	require.NoError(t, env.posts.Review(ctx, reviewer, post.ID, model.StatusApproved, "ok"))

	next := []model.ID{newRes}
	require.NoError(t, env.posts.Modify(ctx, creator, post.ID, PostPatch{Resources: &next, Message: "swap"}))

	got, err := env.db.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status(), "modification revokes prior approval")
	assert.Equal(t, next, got.Resources)

	// Leavers are destroyed, entrants claimed.
	_, err = env.db.GetResource(ctx, oldRes)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	res, err := env.db.GetResource(ctx, newRes)
	require.NoError(t, err)
	assert.True(t, res.Used)
}

func TestModifyForeignPostMasksAsNotFound(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	other := env.register(t, "other@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, creator, "x")
	post, err := env.posts.Create(ctx, creator, "p", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	title := "hijack"
	err = env.posts.Modify(ctx, other, post.ID, PostPatch{Title: &title})
	require.ErrorIs(t, err, apperror.ErrNotFound, "foreign posts look absent, not forbidden")
}

func TestRemoveCascadesToResources(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, creator, "x")
	post, err := env.posts.Create(ctx, creator, "p", "", start, start.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	require.NoError(t, env.posts.Remove(ctx, creator, post.ID))

	_, err = env.db.GetPost(ctx, post.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.db.GetResource(ctx, resID)
	require.ErrorIs(t, err, apperror.ErrNotFound, "removal destroys referenced resources")
}

func TestBulkRemoveUnused(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	admin := env.register(t, "admin@example.com", model.PermRemovePost, model.PermMaintenance)
	ctx := context.Background()
	today := model.Today()

	liveRes := uploadResource(t, env, creator, "live")
	live, err := env.posts.Create(ctx, creator, "live", "", today, today.AddDays(2), []model.ID{liveRes}, false, 0)
	require.NoError(t, err)

	// Plant an already-elapsed post directly: the service refuses to
	// create posts in the past.
	deadRes := uploadResource(t, env, creator, "dead")
	dead := model.NewPost("dead", "", today.AddDays(-10), today.AddDays(-5), []model.ID{deadRes}, live.Creator(), false, model.PriorityNormal)
	require.NoError(t, env.db.InsertPost(ctx, dead))

	removed, err := env.posts.BulkRemoveUnused(ctx, admin, today)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = env.db.GetPost(ctx, dead.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.db.GetPost(ctx, live.ID)
	require.NoError(t, err, "posts still in range survive the sweep")

	// The sweep needs both administrative permissions.
	_, err = env.posts.BulkRemoveUnused(ctx, creator, today)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestFilterVisibility(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	reviewer := env.register(t, "r@example.com", model.PermReviewPost)
	screen := env.register(t, "screen@example.com", model.PermGetPubPost)
	nobody := env.register(t, "nobody@example.com")
	ctx := context.Background()
	today := model.Today()

	resID := uploadResource(t, env, creator, "x")
	post, err := env.posts.Create(ctx, creator, "p", "", today, today.AddDays(2), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	listFor := func(cred auth.Credential) []model.Post {
		posts, err := env.posts.Filter(ctx, cred, PostQuery{Date: &today})
		require.NoError(t, err)
		return posts
	}

	assert.Len(t, listFor(creator), 1, "creators always see their own posts")
	assert.Len(t, listFor(reviewer), 1, "reviewers see everything")
	assert.Empty(t, listFor(screen), "pending posts are not published")
	assert.Empty(t, listFor(nobody))

	require.NoError(t, env.posts.Review(ctx, reviewer, post.ID, model.StatusApproved, "ok"))
	assert.Len(t, listFor(screen), 1, "approved posts in range are published")
	assert.Empty(t, listFor(nobody), "no permission, no posts")

	// Outside the post's range the published view goes dark.
	later := today.AddDays(20)
	posts, err := env.posts.Filter(ctx, screen, PostQuery{Date: &later})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestGetMasksInvisiblePosts(t *testing.T) {
	env := newTestEnv(t)
	creator := creatorCred(t, env, "c@example.com")
	nobody := env.register(t, "nobody@example.com")
	ctx := context.Background()
	today := model.Today()

	resID := uploadResource(t, env, creator, "x")
	post, err := env.posts.Create(ctx, creator, "p", "", today, today.AddDays(1), []model.ID{resID}, false, 0)
	require.NoError(t, err)

	_, err = env.posts.Get(ctx, nobody, post.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := env.posts.Get(ctx, creator, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
}

func TestCreateRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	nobody := env.register(t, "nobody@example.com")
	start := model.Today()

	_, err := env.posts.Create(context.Background(), nobody, "p", "", start, start.AddDays(1), []model.ID{1}, false, 0)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestPriorityValidation(t *testing.T) {
	env := newTestEnv(t)
	cred := creatorCred(t, env, "c@example.com")
	ctx := context.Background()
	start := model.Today()

	resID := uploadResource(t, env, cred, "x")
	_, err := env.posts.Create(ctx, cred, "p", "", start, start.AddDays(1), []model.ID{resID}, false, model.Priority(9))
	require.ErrorIs(t, err, apperror.ErrValidation)

	post, err := env.posts.Create(ctx, cred, "p", "", start, start.AddDays(1), []model.ID{resID}, false, model.PriorityBlock)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityBlock, post.Priority)
}
