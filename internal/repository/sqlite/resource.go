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

var _ repository.ResourceRepository = (*DB)(nil)

func (db *DB) InsertResource(ctx context.Context, res *model.Resource) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("sqlite: encoding resource %d: %w", res.ID, err)
	}
	used := 0
	if res.Used {
		used = 1
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO resources (id, used, owner, doc) VALUES (?, ?, ?, ?)`,
		int64(res.ID), used, int64(res.Owner), string(doc),
	)
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("resource", uint64(res.ID))
		}
		return fmt.Errorf("sqlite: inserting resource %d: %w", res.ID, err)
	}
	return nil
}

func (db *DB) GetResource(ctx context.Context, id model.ID) (*model.Resource, error) {
	var (
		used int
		doc  string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT used, doc FROM resources WHERE id = ?`, int64(id),
	).Scan(&used, &doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("resource", uint64(id))
		}
		return nil, fmt.Errorf("sqlite: getting resource %d: %w", id, err)
	}

	var res model.Resource
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, fmt.Errorf("sqlite: decoding resource %d: %w", id, err)
	}
	// The used flag lives in the index column, not the document.
	res.Used = used != 0
	return &res, nil
}

func (db *DB) DeleteResource(ctx context.Context, id model.ID) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM resources WHERE id = ?`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting resource %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("resource", uint64(id))
	}
	return nil
}

// ClaimResource flips used 0 -> 1 atomically. The conditional UPDATE is
// the compare-and-set that guarantees a resource lands on at most one
// post even under concurrent claims.
func (db *DB) ClaimResource(ctx context.Context, id model.ID) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE resources SET used = 1 WHERE id = ? AND used = 0`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: claiming resource %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the resource does not exist or it is already claimed;
		// distinguish so callers can report the right error.
		var exists int
		err := db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM resources WHERE id = ?`, int64(id),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking resource %d: %w", id, err)
		}
		if exists == 0 {
			return apperror.NotFound("resource", uint64(id))
		}
		return apperror.Conflict("resource", uint64(id))
	}
	return nil
}

func (db *DB) ReleaseResource(ctx context.Context, id model.ID) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE resources SET used = 0 WHERE id = ?`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: releasing resource %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("resource", uint64(id))
	}
	return nil
}
