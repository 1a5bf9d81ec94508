package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

func (db *DB) InsertNotification(ctx context.Context, n *model.Notification) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("sqlite: encoding notification %d: %w", n.ID, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, ordinal, sender, doc) VALUES (?, ?, ?, ?)`,
		int64(n.ID), n.Time.YearDay(), int64(n.Sender), string(doc),
	)
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("notification", uint64(n.ID))
		}
		return fmt.Errorf("sqlite: inserting notification %d: %w", n.ID, err)
	}
	return nil
}

func (db *DB) GetNotification(ctx context.Context, id model.ID) (*model.Notification, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM notifications WHERE id = ?`, int64(id),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("notification", uint64(id))
		}
		return nil, fmt.Errorf("sqlite: getting notification %d: %w", id, err)
	}

	var n model.Notification
	if err := json.Unmarshal([]byte(doc), &n); err != nil {
		return nil, fmt.Errorf("sqlite: decoding notification %d: %w", id, err)
	}
	return &n, nil
}

func (db *DB) DeleteNotification(ctx context.Context, id model.ID) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ?`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting notification %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", uint64(id))
	}
	return nil
}

func (db *DB) FilterNotifications(ctx context.Context, f repository.NotificationFilter) ([]model.Notification, error) {
	query, args := buildFilterQuery("notifications", "sender", filterArgs{
		afterID: idArg(f.AfterID),
		owner:   idArg(f.Sender),
		ranges:  f.OrdinalRanges,
		limit:   f.Limit,
	})

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: filtering notifications: %w", err)
	}
	defer rows.Close()

	var ns []model.Notification
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(doc), &n); err != nil {
			return nil, fmt.Errorf("sqlite: decoding notification row: %w", err)
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}
	return ns, nil
}
