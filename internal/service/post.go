package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/dateindex"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

// DefaultFilterLimit bounds filter results when the caller does not
// pass an explicit limit.
const DefaultFilterLimit = 16

// resourceLifecycle is the slice of the resource service the post
// workflow needs: posts claim, release and destroy the resources they
// reference, and destruction must also remove the payload file, which
// only the resource service knows how to do.
type resourceLifecycle interface {
	Get(ctx context.Context, id model.ID) (*model.Resource, error)
	Claim(ctx context.Context, id model.ID) error
	Release(ctx context.Context, id model.ID) error
	Destroy(ctx context.Context, id model.ID) error
}

// PostService drives the post review workflow and the resource
// binding that goes with it.
type PostService struct {
	posts     repository.PostRepository
	resources resourceLifecycle
	guard     *auth.Guard
	logger    *slog.Logger
}

func NewPostService(posts repository.PostRepository, resources resourceLifecycle, guard *auth.Guard, logger *slog.Logger) *PostService {
	return &PostService{
		posts:     posts,
		resources: resources,
		guard:     guard,
		logger:    logger,
	}
}

func validPriority(p model.Priority) bool {
	switch p {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityBlock:
		return true
	}
	return false
}

// claimAll claims the listed resources in order, verifying each is
// owned by owner. On any failure it releases everything claimed in
// this attempt before returning, so a failed claim never leaves a
// resource half-bound.
func (s *PostService) claimAll(ctx context.Context, ids []model.ID, owner model.ID) error {
	seen := make(map[model.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperror.ValidationFailed("resources", "duplicate resource id")
		}
		seen[id] = struct{}{}
	}

	var claimed []model.ID
	rollback := func() {
		for _, id := range claimed {
			if err := s.resources.Release(ctx, id); err != nil {
				s.logger.Error("compensating release failed",
					slog.String("resource", id.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, id := range ids {
		res, err := s.resources.Get(ctx, id)
		if err != nil {
			rollback()
			return err
		}
		if res.Owner != owner {
			rollback()
			return apperror.Forbidden("resource is not owned by the post creator")
		}
		if err := s.resources.Claim(ctx, id); err != nil {
			rollback()
			return err
		}
		claimed = append(claimed, id)
	}
	return nil
}

// destroyAll cascades resource destruction, best effort: a failure is
// logged and the remaining resources are still destroyed.
func (s *PostService) destroyAll(ctx context.Context, ids []model.ID) {
	for _, id := range ids {
		if err := s.resources.Destroy(ctx, id); err != nil {
			s.logger.Error("cascading resource destroy failed",
				slog.String("resource", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Create validates the time range, claims every listed resource for
// the new post and inserts it in the pending state.
func (s *PostService) Create(ctx context.Context, cred auth.Credential, title, notes string, start, end model.Date, resourceIDs []model.ID, grouped bool, priority model.Priority) (*model.Post, error) {
	creator, err := s.guard.Authorize(ctx, cred, model.PermNewPost)
	if err != nil {
		return nil, err
	}

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(resourceIDs) == 0 {
		return nil, apperror.ValidationFailed("resources", "a post must reference at least one resource")
	}
	if priority == 0 {
		priority = model.PriorityNormal
	}
	if !validPriority(priority) {
		return nil, apperror.ValidationFailed("priority", "unknown priority")
	}
	if err := model.ValidateTimeRange(start, end, model.Today()); err != nil {
		return nil, err
	}

	if err := s.claimAll(ctx, resourceIDs, creator.ID); err != nil {
		return nil, err
	}

	post := model.NewPost(title, notes, start, end, resourceIDs, creator.ID, grouped, priority)
	if err := s.posts.InsertPost(ctx, post); err != nil {
		for _, id := range resourceIDs {
			if rerr := s.resources.Release(ctx, id); rerr != nil {
				s.logger.Error("compensating release failed",
					slog.String("resource", id.String()),
					slog.String("error", rerr.Error()),
				)
			}
		}
		return nil, err
	}

	s.logger.Info("post created",
		slog.String("post", post.ID.String()),
		slog.String("creator", creator.ID.String()),
	)
	return post, nil
}

// PostPatch holds the creator-changeable post fields; nil fields are
// left untouched. Message becomes the note on the appended pending
// state.
type PostPatch struct {
	Title     *string
	Start     *model.Date
	End       *model.Date
	Grouped   *bool
	Priority  *model.Priority
	Resources *[]model.ID
	Message   string
}

// Modify applies a patch to the caller's own post. Resources leaving
// the set are destroyed outright; entrants are claimed with rollback.
// Every successful modify re-enters the pending state, revoking any
// prior approval.
func (s *PostService) Modify(ctx context.Context, cred auth.Credential, postID model.ID, patch PostPatch) error {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return err
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	// Foreign posts are indistinguishable from absent ones.
	if post.Creator() != caller.ID {
		return apperror.NotFound("post", uint64(postID))
	}

	if patch.Title != nil {
		if *patch.Title == "" {
			return apperror.ValidationFailed("title", "title is required")
		}
		post.Title = *patch.Title
	}
	if patch.Start != nil || patch.End != nil {
		start, end := post.Start, post.End
		if patch.Start != nil {
			start = *patch.Start
		}
		if patch.End != nil {
			end = *patch.End
		}
		if err := model.ValidateTimeRange(start, end, model.Today()); err != nil {
			return err
		}
		post.Start, post.End = start, end
	}
	if patch.Grouped != nil {
		post.Grouped = *patch.Grouped
	}
	if patch.Priority != nil {
		if !validPriority(*patch.Priority) {
			return apperror.ValidationFailed("priority", "unknown priority")
		}
		post.Priority = *patch.Priority
	}

	if patch.Resources != nil {
		next := *patch.Resources
		if len(next) == 0 {
			return apperror.ValidationFailed("resources", "a post must reference at least one resource")
		}

		old := make(map[model.ID]struct{}, len(post.Resources))
		for _, id := range post.Resources {
			old[id] = struct{}{}
		}
		var entrants []model.ID
		for _, id := range next {
			if _, kept := old[id]; kept {
				delete(old, id)
			} else {
				entrants = append(entrants, id)
			}
		}

		if err := s.claimAll(ctx, entrants, caller.ID); err != nil {
			return err
		}
		// Leavers are single-use: destroyed, not released for reuse.
		leavers := make([]model.ID, 0, len(old))
		for id := range old {
			leavers = append(leavers, id)
		}
		s.destroyAll(ctx, leavers)
		post.Resources = next
	}

	post.AppendState(model.StatusPending, caller.ID, patch.Message)
	return s.posts.UpdatePost(ctx, post)
}

// Review appends a review outcome by a holder of the review
// permission.
func (s *PostService) Review(ctx context.Context, cred auth.Credential, postID model.ID, status model.Status, message string) error {
	reviewer, err := s.guard.Authorize(ctx, cred, model.PermReviewPost)
	if err != nil {
		return err
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := post.Review(status, reviewer.ID, message); err != nil {
		return err
	}
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		return err
	}

	s.logger.Info("post reviewed",
		slog.String("post", postID.String()),
		slog.String("reviewer", reviewer.ID.String()),
		slog.String("status", string(status)),
	)
	return nil
}

// Remove destroys a post and cascades destruction to every resource it
// references. Permitted to the creator or a remove-permission holder.
func (s *PostService) Remove(ctx context.Context, cred auth.Credential, postID model.ID) error {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return err
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Creator() != caller.ID && !caller.Tags.ContainsPermission(model.PermRemovePost) {
		return apperror.NotFound("post", uint64(postID))
	}

	s.destroyAll(ctx, post.Resources)
	return s.posts.DeletePost(ctx, postID)
}

// BulkRemove removes each listed post under the same rules as Remove.
// Absent posts are skipped; any other failure aborts the batch.
func (s *PostService) BulkRemove(ctx context.Context, cred auth.Credential, ids []model.ID) error {
	for _, id := range ids {
		if err := s.Remove(ctx, cred, id); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// BulkRemoveUnused destroys every post whose time range has fully
// elapsed as of the cutoff, cascading resource destruction. An
// administrative sweep requiring both the remove and maintenance
// permissions.
func (s *PostService) BulkRemoveUnused(ctx context.Context, cred auth.Credential, cutoff model.Date) (int, error) {
	if _, err := s.guard.Authorize(ctx, cred, model.PermRemovePost, model.PermMaintenance); err != nil {
		return 0, err
	}

	posts, err := s.posts.FilterPosts(ctx, repository.PostFilter{})
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range posts {
		post := &posts[i]
		if !post.EndedBefore(cutoff) {
			continue
		}
		s.destroyAll(ctx, post.Resources)
		if err := s.posts.DeletePost(ctx, post.ID); err != nil {
			return removed, err
		}
		removed++
	}

	s.logger.Info("unused posts removed", slog.Int("count", removed))
	return removed, nil
}

// PostQuery is the caller-facing filter. Date narrows to posts whose
// range could overlap it; nil fields are unrestricted.
type PostQuery struct {
	AfterID  *model.ID
	Creator  *model.ID
	Approved *bool
	Date     *model.Date
	Limit    int
}

// visible reports whether the caller may see the post: creators see
// their own, review-permission holders see everything, and
// get-published holders see approved posts playing on the query date.
func visible(post *model.Post, caller *model.Account, date model.Date) bool {
	if post.Creator() == caller.ID {
		return true
	}
	if caller.Tags.ContainsPermission(model.PermReviewPost) {
		return true
	}
	return caller.Tags.ContainsPermission(model.PermGetPubPost) &&
		post.Status() == model.StatusApproved &&
		post.Contains(date)
}

// Filter returns the posts matching the query that the caller is
// allowed to see.
func (s *PostService) Filter(ctx context.Context, cred auth.Credential, q PostQuery) ([]model.Post, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}

	date := model.Today()
	f := repository.PostFilter{
		AfterID:  q.AfterID,
		Creator:  q.Creator,
		Approved: q.Approved,
		Limit:    q.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = DefaultFilterLimit
	}
	if q.Date != nil {
		date = *q.Date
		// A post starting up to a week before the date can still
		// cover it, so the index window spans the maximum post length
		// on both sides and wraps across New Year when needed.
		f.OrdinalRanges = dateindex.Window(date, model.MaxPostDays)
	}

	posts, err := s.posts.FilterPosts(ctx, f)
	if err != nil {
		return nil, err
	}

	out := posts[:0]
	for i := range posts {
		if visible(&posts[i], caller, date) {
			out = append(out, posts[i])
		}
	}
	return out, nil
}

// Get returns a single post under the same visibility rules as Filter,
// masking invisible posts as absent.
func (s *PostService) Get(ctx context.Context, cred auth.Credential, postID model.ID) (*model.Post, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !visible(post, caller, model.Today()) {
		return nil, apperror.NotFound("post", uint64(postID))
	}
	return post, nil
}

// BulkGet returns the visible subset of the requested posts; absent
// and invisible posts are skipped.
func (s *PostService) BulkGet(ctx context.Context, cred auth.Credential, ids []model.ID) ([]model.Post, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}

	today := model.Today()
	posts := make([]model.Post, 0, len(ids))
	for _, id := range ids {
		post, err := s.posts.GetPost(ctx, id)
		if err != nil {
			continue
		}
		if visible(post, caller, today) {
			posts = append(posts, *post)
		}
	}
	return posts, nil
}
