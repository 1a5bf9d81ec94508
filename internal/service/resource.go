package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/zeebo/blake3"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

// MaxResourceBytes caps an uploaded payload at 50 MiB.
const MaxResourceBytes int64 = 50 << 20

// sessionTTL is how long an upload session stays redeemable.
const sessionTTL = 15 * time.Second

type uploadSession struct {
	resource *model.Resource
	created  time.Time
}

// ResourceService manages the resource lifecycle: upload sessions,
// streamed commits, claim/release and destruction. The session table
// is in-process only, guarded by one mutex and swept lazily on every
// mutating access.
type ResourceService struct {
	repo   repository.ResourceRepository
	guard  *auth.Guard
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[model.ID]uploadSession
}

func NewResourceService(repo repository.ResourceRepository, guard *auth.Guard, dir string, logger *slog.Logger) *ResourceService {
	return &ResourceService{
		repo:     repo,
		guard:    guard,
		dir:      dir,
		logger:   logger,
		sessions: make(map[model.ID]uploadSession),
	}
}

// sweep evicts expired sessions and their buffer files. Callers must
// hold the mutex.
func (s *ResourceService) sweep(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.created) > sessionTTL {
			delete(s.sessions, id)
			os.Remove(filepath.Join(s.dir, sess.resource.BufName()))
		}
	}
}

// NewSession opens an upload session for a resource with the given
// variant and returns the session id.
func (s *ResourceService) NewSession(ctx context.Context, cred auth.Credential, variant model.Variant) (model.ID, error) {
	caller, err := s.guard.Authorize(ctx, cred, model.PermUploadResource)
	if err != nil {
		return 0, err
	}
	if err := variant.Validate(); err != nil {
		return 0, err
	}

	res := model.NewResource(variant, caller.ID)

	s.mu.Lock()
	s.sweep(time.Now())
	s.sessions[res.ID] = uploadSession{resource: res, created: time.Now()}
	s.mu.Unlock()

	return res.ID, nil
}

// takeSession removes and returns the session, failing when it is
// absent, expired or owned by someone else.
func (s *ResourceService) takeSession(sessionID, caller model.ID) (*model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(time.Now())

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperror.NotFoundNamed("upload session")
	}
	if sess.resource.Owner != caller {
		return nil, apperror.Forbidden("upload session belongs to another account")
	}
	delete(s.sessions, sessionID)
	return sess.resource, nil
}

// Upload streams the payload into a buffer file while hashing it, then
// commits: the final id is derived from the content hash, the record
// is durably inserted and the buffer renamed to its permanent path.
// Payloads over the cap are rejected and leave nothing behind.
func (s *ResourceService) Upload(ctx context.Context, cred auth.Credential, sessionID model.ID, body io.Reader) (*model.Resource, error) {
	caller, err := s.guard.Authorize(ctx, cred, model.PermUploadResource)
	if err != nil {
		return nil, err
	}

	res, err := s.takeSession(sessionID, caller.ID)
	if err != nil {
		return nil, err
	}
	uploadID := xid.New().String()
	bufPath := filepath.Join(s.dir, res.BufName())

	buf, err := os.Create(bufPath)
	if err != nil {
		return nil, fmt.Errorf("creating buffer file: %w", err)
	}

	hasher := blake3.New()
	// Read one byte past the cap so an oversized stream is detected
	// without consuming it all.
	n, err := io.Copy(io.MultiWriter(buf, hasher), io.LimitReader(body, MaxResourceBytes+1))
	if err != nil {
		buf.Close()
		os.Remove(bufPath)
		return nil, fmt.Errorf("streaming payload: %w", err)
	}
	if n > MaxResourceBytes {
		buf.Close()
		os.Remove(bufPath)
		return nil, apperror.PayloadTooLarge(MaxResourceBytes)
	}
	if err := buf.Sync(); err != nil {
		buf.Close()
		os.Remove(bufPath)
		return nil, fmt.Errorf("syncing buffer file: %w", err)
	}
	if err := buf.Close(); err != nil {
		os.Remove(bufPath)
		return nil, fmt.Errorf("closing buffer file: %w", err)
	}

	var sum [32]byte
	hasher.Sum(sum[:0])
	res.FinalizeID(sum[:])

	// The record commits before the payload moves: the final path is
	// shared per id, so a rejected insert must never touch it.
	if err := s.repo.InsertResource(ctx, res); err != nil {
		os.Remove(bufPath)
		return nil, err
	}
	finalPath := filepath.Join(s.dir, res.FileName())
	if err := os.Rename(bufPath, finalPath); err != nil {
		if derr := s.repo.DeleteResource(ctx, res.ID); derr != nil {
			s.logger.Error("rolling back resource record",
				slog.String("resource", res.ID.String()),
				slog.String("error", derr.Error()),
			)
		}
		os.Remove(bufPath)
		return nil, fmt.Errorf("placing resource file: %w", err)
	}

	s.logger.Info("resource uploaded",
		slog.String("upload_id", uploadID),
		slog.String("resource", res.ID.String()),
		slog.String("owner", res.Owner.String()),
		slog.Int64("bytes", n),
	)
	return res, nil
}

// Get fetches the resource record.
func (s *ResourceService) Get(ctx context.Context, id model.ID) (*model.Resource, error) {
	return s.repo.GetResource(ctx, id)
}

// Claim marks the resource as used by a post; fails if already used.
func (s *ResourceService) Claim(ctx context.Context, id model.ID) error {
	return s.repo.ClaimResource(ctx, id)
}

// Release returns a claimed resource to the unclaimed state.
func (s *ResourceService) Release(ctx context.Context, id model.ID) error {
	return s.repo.ReleaseResource(ctx, id)
}

// Destroy removes the record and the payload file. Only the post
// workflow calls this while a resource is claimed, as part of
// destroying the referencing post.
func (s *ResourceService) Destroy(ctx context.Context, id model.ID) error {
	if err := s.repo.DeleteResource(ctx, id); err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("r_%d", id))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("removing resource file",
			slog.String("resource", id.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// visibleResource reports whether the caller may read the resource:
// its owner always, anyone holding the published-post permission once
// it is claimed by a post.
func visibleResource(res *model.Resource, caller *model.Account) bool {
	if res.Owner == caller.ID {
		return true
	}
	return res.Used && caller.Tags.ContainsPermission(model.PermGetPubPost)
}

// GetInfo returns the resource record under the visibility rule,
// masking invisible resources as absent.
func (s *ResourceService) GetInfo(ctx context.Context, cred auth.Credential, id model.ID) (*model.Resource, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleResource(res, caller) {
		return nil, apperror.NotFound("resource", uint64(id))
	}
	return res, nil
}

// BulkGetInfo returns the visible subset of the requested resources.
func (s *ResourceService) BulkGetInfo(ctx context.Context, cred auth.Credential, ids []model.ID) ([]model.Resource, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}

	out := make([]model.Resource, 0, len(ids))
	for _, id := range ids {
		res, err := s.repo.GetResource(ctx, id)
		if err != nil {
			continue
		}
		if visibleResource(res, caller) {
			out = append(out, *res)
		}
	}
	return out, nil
}

// GetPayload opens the payload file for streaming, under the same
// visibility rule as GetInfo. The caller owns the returned file.
func (s *ResourceService) GetPayload(ctx context.Context, cred auth.Credential, id model.ID) (*os.File, *model.Resource, error) {
	res, err := s.GetInfo(ctx, cred, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, res.FileName()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperror.NotFound("resource", uint64(id))
		}
		return nil, nil, fmt.Errorf("opening resource file: %w", err)
	}
	return f, res, nil
}
