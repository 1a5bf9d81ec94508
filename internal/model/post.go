package model

import (
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
)

// Status of a post review state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Priority controls on-screen scheduling of a post.
type Priority uint8

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	// PriorityBlock suppresses all non-blocking posts while in its
	// play time.
	PriorityBlock Priority = 255
)

// MaxPostDays is the maximum span of a post's time range, in days
// beyond the start date (a range of exactly one week is legal).
const MaxPostDays = 7

// State is one entry in a post's review history. Past entries are
// never mutated; the history only grows.
type State struct {
	Status   Status    `json:"status"`
	Time     time.Time `json:"time"`
	Operator ID        `json:"operator"`
	Message  string    `json:"message"`
}

// Post is a content post displayed on screens within its time range.
//
// Index dimensions:
//
//	0 -> id
//	1 -> start date day of the year
//	2 -> creator id
//	3 -> is approved
type Post struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`

	// On-screen time range, inclusive on both ends.
	Start Date `json:"start"`
	End   Date `json:"end"`

	// Resources this post references, claimed for its lifetime.
	Resources []ID `json:"resources"`

	Grouped  bool     `json:"grouped"`
	Priority Priority `json:"priority"`

	// States in time order; never empty. The first entry's operator
	// is the creator, the last entry's status is the current status.
	States []State `json:"states"`
}

// NewPost creates a post in the pending state. The id mixes the title,
// creator, time range, current time and a random nonce.
func NewPost(title, notes string, start, end Date, resources []ID, creator ID, grouped bool, priority Priority) *Post {
	return &Post{
		ID:        randomID([]byte(title), idBytes(creator), []byte(start.String()), []byte(end.String())),
		Title:     title,
		Start:     start,
		End:       end,
		Resources: resources,
		Grouped:   grouped,
		Priority:  priority,
		States: []State{{
			Status:   StatusPending,
			Time:     time.Now().UTC(),
			Operator: creator,
			Message:  notes,
		}},
	}
}

// Creator is the operator of the first state.
func (p *Post) Creator() ID {
	return p.States[0].Operator
}

// State returns the latest state.
func (p *Post) State() State {
	return p.States[len(p.States)-1]
}

// Status returns the current status.
func (p *Post) Status() Status {
	return p.State().Status
}

// AppendState appends to the review history.
func (p *Post) AppendState(status Status, operator ID, message string) {
	p.States = append(p.States, State{
		Status:   status,
		Time:     time.Now().UTC(),
		Operator: operator,
		Message:  message,
	})
}

// Review validates and appends a review outcome. The status must be
// approved or rejected, and must differ from the current status:
// re-reviewing with the same outcome would produce a redundant,
// ambiguous history entry.
func (p *Post) Review(status Status, reviewer ID, message string) error {
	if status != StatusApproved && status != StatusRejected {
		return apperror.ValidationFailed("status", "review status must be approved or rejected")
	}
	if p.Status() == status {
		return apperror.ValidationFailed("status", "post has already been reviewed with the same status")
	}
	p.AppendState(status, reviewer, message)
	return nil
}

// Contains reports whether the post's time range includes the date.
func (p *Post) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// EndedBefore reports whether the post's range has fully elapsed as of
// the cutoff date.
func (p *Post) EndedBefore(cutoff Date) bool {
	return p.End.Before(cutoff)
}

// ValidateTimeRange enforces the range invariants: start not after
// end, span at most one week, and the end date not in the past as of
// today.
func ValidateTimeRange(start, end, today Date) error {
	if end.Before(start) {
		return apperror.ValidationFailed("time", "end date is before start date")
	}
	if start.DaysUntil(end) > MaxPostDays {
		return apperror.ValidationFailed("time", "post time range out of bound: expected at most one week")
	}
	if end.Before(today) {
		return apperror.ValidationFailed("time", "post end date has already passed")
	}
	return nil
}
