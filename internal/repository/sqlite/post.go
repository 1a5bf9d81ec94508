package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/dateindex"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

func postIndexValues(post *model.Post) (ordinal int, creator int64, approved int) {
	ordinal = post.Start.Ordinal()
	creator = int64(post.Creator())
	if post.Status() == model.StatusApproved {
		approved = 1
	}
	return
}

func (db *DB) InsertPost(ctx context.Context, post *model.Post) error {
	doc, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("sqlite: encoding post %d: %w", post.ID, err)
	}
	ordinal, creator, approved := postIndexValues(post)
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, ordinal, creator, approved, doc) VALUES (?, ?, ?, ?, ?)`,
		int64(post.ID), ordinal, creator, approved, string(doc),
	)
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("post", uint64(post.ID))
		}
		return fmt.Errorf("sqlite: inserting post %d: %w", post.ID, err)
	}
	return nil
}

func (db *DB) GetPost(ctx context.Context, id model.ID) (*model.Post, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM posts WHERE id = ?`, int64(id),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", uint64(id))
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}

	var post model.Post
	if err := json.Unmarshal([]byte(doc), &post); err != nil {
		return nil, fmt.Errorf("sqlite: decoding post %d: %w", id, err)
	}
	return &post, nil
}

// UpdatePost rewrites the document and recomputes the index columns,
// since a review flips the approved dimension and a modification can
// move the start ordinal.
func (db *DB) UpdatePost(ctx context.Context, post *model.Post) error {
	doc, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("sqlite: encoding post %d: %w", post.ID, err)
	}
	ordinal, creator, approved := postIndexValues(post)
	res, err := db.conn.ExecContext(ctx,
		`UPDATE posts SET ordinal = ?, creator = ?, approved = ?, doc = ? WHERE id = ?`,
		ordinal, creator, approved, string(doc), int64(post.ID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %d: %w", post.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("post", uint64(post.ID))
	}
	return nil
}

func (db *DB) DeletePost(ctx context.Context, id model.ID) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM posts WHERE id = ?`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("post", uint64(id))
	}
	return nil
}

func (db *DB) FilterPosts(ctx context.Context, f repository.PostFilter) ([]model.Post, error) {
	query, args := buildFilterQuery("posts", "creator", filterArgs{
		afterID:  idArg(f.AfterID),
		owner:    idArg(f.Creator),
		approved: f.Approved,
		ranges:   f.OrdinalRanges,
		limit:    f.Limit,
	})

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: filtering posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		var post model.Post
		if err := json.Unmarshal([]byte(doc), &post); err != nil {
			return nil, fmt.Errorf("sqlite: decoding post row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating post rows: %w", err)
	}
	return posts, nil
}

// filterArgs is the shared shape of the post and notification filters:
// a keyset cursor, an owner dimension, an optional approved dimension
// and a union of ordinal ranges.
type filterArgs struct {
	afterID  *int64
	owner    *int64
	approved *bool
	ranges   []dateindex.Range
	limit    int
}

func idArg(id *model.ID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

// buildFilterQuery assembles the SELECT over the index columns. Results
// are ordered by id so AfterID works as a stable keyset cursor.
func buildFilterQuery(table, ownerCol string, f filterArgs) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.afterID != nil {
		conds = append(conds, "id > ?")
		args = append(args, *f.afterID)
	}
	if f.owner != nil {
		conds = append(conds, ownerCol+" = ?")
		args = append(args, *f.owner)
	}
	if f.approved != nil {
		conds = append(conds, "approved = ?")
		if *f.approved {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if len(f.ranges) > 0 {
		var ors []string
		for _, r := range f.ranges {
			ors = append(ors, "ordinal BETWEEN ? AND ?")
			args = append(args, r.Lo, r.Hi)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	query := "SELECT doc FROM " + table
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if f.limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.limit)
	}
	return query, args
}
