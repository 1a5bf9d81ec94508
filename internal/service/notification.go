package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/dateindex"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

// NotificationService manages admin announcements. There is no review
// workflow; visibility is time-based instead.
type NotificationService struct {
	repo   repository.NotificationRepository
	guard  *auth.Guard
	logger *slog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, guard *auth.Guard, logger *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, guard: guard, logger: logger}
}

// Notify publishes a notification scheduled at the given time.
func (s *NotificationService) Notify(ctx context.Context, cred auth.Credential, title, body string, at time.Time) (*model.Notification, error) {
	sender, err := s.guard.Authorize(ctx, cred, model.PermManageNotif)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}

	n := model.NewNotification(title, body, at, sender.ID)
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		return nil, err
	}

	s.logger.Info("notification published",
		slog.String("notification", n.ID.String()),
		slog.String("sender", sender.ID.String()),
	)
	return n, nil
}

// Remove deletes a notification; managers only.
func (s *NotificationService) Remove(ctx context.Context, cred auth.Credential, id model.ID) error {
	if _, err := s.guard.Authorize(ctx, cred, model.PermManageNotif); err != nil {
		return err
	}
	return s.repo.DeleteNotification(ctx, id)
}

// NotificationView is the externally visible projection: managers get
// the full record, everyone else just title and body.
type NotificationView struct {
	ID    model.ID `json:"id"`
	Title string   `json:"title"`
	Body  string   `json:"body"`

	Time   *time.Time `json:"time,omitempty"`
	Sender *model.ID  `json:"sender,omitempty"`
}

func notificationView(n *model.Notification, manager bool) NotificationView {
	v := NotificationView{ID: n.ID, Title: n.Title, Body: n.Body}
	if manager {
		v.Time = &n.Time
		v.Sender = &n.Sender
	}
	return v
}

// NotificationQuery filters notifications by a two-sided date window
// and, for managers, by sender.
type NotificationQuery struct {
	AfterID *model.ID
	Sender  *model.ID
	After   *model.Date
	Before  *model.Date
	Limit   int
}

// Filter returns the notifications matching the query. Non-managers
// need the published-notification permission, cannot filter by sender,
// and never see notifications scheduled in the future.
func (s *NotificationService) Filter(ctx context.Context, cred auth.Credential, q NotificationQuery) ([]NotificationView, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}
	manager := caller.Tags.ContainsPermission(model.PermManageNotif)
	if !manager && !caller.Tags.ContainsPermission(model.PermGetPubNotif) {
		return nil, apperror.Forbidden("missing permission to view notifications")
	}
	if !manager && q.Sender != nil {
		return nil, apperror.Forbidden("sender filter requires the notification manage permission")
	}

	f := repository.NotificationFilter{
		AfterID: q.AfterID,
		Sender:  q.Sender,
		Limit:   q.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = DefaultFilterLimit
	}
	if q.After != nil && q.Before != nil {
		f.OrdinalRanges = dateindex.Between(*q.After, *q.Before)
	}

	ns, err := s.repo.FilterNotifications(ctx, f)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]NotificationView, 0, len(ns))
	for i := range ns {
		n := &ns[i]
		if !manager && n.Time.After(now) {
			continue
		}
		if q.After != nil && model.DateOf(n.Time).Before(*q.After) {
			continue
		}
		if q.Before != nil && model.DateOf(n.Time).After(*q.Before) {
			continue
		}
		views = append(views, notificationView(n, manager))
	}
	return views, nil
}

// GetInfo returns one notification. Future notifications are absent to
// non-managers.
func (s *NotificationService) GetInfo(ctx context.Context, cred auth.Credential, id model.ID) (NotificationView, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return NotificationView{}, err
	}
	manager := caller.Tags.ContainsPermission(model.PermManageNotif)
	if !manager && !caller.Tags.ContainsPermission(model.PermGetPubNotif) {
		return NotificationView{}, apperror.Forbidden("missing permission to view notifications")
	}

	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return NotificationView{}, err
	}
	if !manager && n.Time.After(time.Now()) {
		return NotificationView{}, apperror.NotFound("notification", uint64(id))
	}
	return notificationView(n, manager), nil
}

// BulkGetInfo returns simple views of the requested notifications,
// skipping absent ones and, for non-managers, future ones.
func (s *NotificationService) BulkGetInfo(ctx context.Context, cred auth.Credential, ids []model.ID) ([]NotificationView, error) {
	caller, err := s.guard.Authorize(ctx, cred)
	if err != nil {
		return nil, err
	}
	manager := caller.Tags.ContainsPermission(model.PermManageNotif)
	if !manager && !caller.Tags.ContainsPermission(model.PermGetPubNotif) {
		return nil, apperror.Forbidden("missing permission to view notifications")
	}

	now := time.Now()
	views := make([]NotificationView, 0, len(ids))
	for _, id := range ids {
		n, err := s.repo.GetNotification(ctx, id)
		if err != nil {
			continue
		}
		if !manager && n.Time.After(now) {
			continue
		}
		views = append(views, notificationView(n, manager))
	}
	return views, nil
}
