package model

import "time"

// Notification is an admin announcement displayed by the screens from
// its start time. There is no review workflow.
//
// Index dimensions:
//
//	0 -> id
//	1 -> start date day of the year
type Notification struct {
	ID     ID        `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Time   time.Time `json:"time"`
	Sender ID        `json:"sender"`
}

// NewNotification creates a notification; the id mixes the body, the
// scheduled time and the current time.
func NewNotification(title, body string, at time.Time, sender ID) *Notification {
	return &Notification{
		ID:     randomID([]byte(body), []byte(at.UTC().Format(time.RFC3339Nano))),
		Title:  title,
		Body:   body,
		Time:   at.UTC(),
		Sender: sender,
	}
}
