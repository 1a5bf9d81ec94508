// Package repository declares the storage interfaces the services
// depend on. The storage engine is an external collaborator: every
// entity is a document keyed by a 64-bit id plus a small number of
// integer index dimensions the engine can range-scan. Implementations
// must make inserts fail on id collision and make the resource
// claim/release flag a per-record compare-and-set.
package repository

import (
	"context"

	"github.com/subitlab-buf/sms4-backend/internal/dateindex"
	"github.com/subitlab-buf/sms4-backend/internal/model"
)

type AccountRepository interface {
	// InsertAccount stores a new account; fails with a conflict error
	// when the id already exists.
	InsertAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id model.ID) (*model.Account, error)
	// UpdateAccount rewrites the record in a single step; callers
	// follow the fetch-mutate-write pattern and never hold a record
	// across unrelated blocking calls.
	UpdateAccount(ctx context.Context, account *model.Account) error
}

type UnverifiedRepository interface {
	InsertUnverified(ctx context.Context, u *model.Unverified) error
	GetUnverified(ctx context.Context, id model.ID) (*model.Unverified, error)
	UpdateUnverified(ctx context.Context, u *model.Unverified) error
	DeleteUnverified(ctx context.Context, id model.ID) error
}

// PostFilter composes the index-range predicates of a post query. Nil
// fields are unrestricted. OrdinalRanges is the wrap-aware day-of-year
// window; multiple ranges are a union.
type PostFilter struct {
	AfterID       *model.ID
	Creator       *model.ID
	Approved      *bool
	OrdinalRanges []dateindex.Range
	Limit         int
}

type PostRepository interface {
	InsertPost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id model.ID) (*model.Post, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id model.ID) error
	// FilterPosts returns posts matching the index predicates,
	// ordered by id. Finer predicates (visibility, exact range
	// overlap) are applied by the caller on the fetched records.
	FilterPosts(ctx context.Context, f PostFilter) ([]model.Post, error)
}

type ResourceRepository interface {
	InsertResource(ctx context.Context, res *model.Resource) error
	GetResource(ctx context.Context, id model.ID) (*model.Resource, error)
	DeleteResource(ctx context.Context, id model.ID) error
	// ClaimResource transitions used false -> true. Fails with a
	// conflict error when the resource is already claimed; this is
	// the exclusivity guard keeping a resource on at most one live
	// post.
	ClaimResource(ctx context.Context, id model.ID) error
	// ReleaseResource transitions used true -> false; always legal.
	ReleaseResource(ctx context.Context, id model.ID) error
}

// NotificationFilter mirrors PostFilter for notifications.
type NotificationFilter struct {
	AfterID       *model.ID
	Sender        *model.ID
	OrdinalRanges []dateindex.Range
	Limit         int
}

type NotificationRepository interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id model.ID) (*model.Notification, error)
	DeleteNotification(ctx context.Context, id model.ID) error
	FilterNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
}
