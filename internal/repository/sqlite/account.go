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

// compile-time checks that *DB implements the account repositories
var (
	_ repository.AccountRepository    = (*DB)(nil)
	_ repository.UnverifiedRepository = (*DB)(nil)
)

func (db *DB) InsertAccount(ctx context.Context, account *model.Account) error {
	doc, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("sqlite: encoding account %d: %w", account.ID, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, doc) VALUES (?, ?)`,
		int64(account.ID), string(doc),
	)
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("account", uint64(account.ID))
		}
		return fmt.Errorf("sqlite: inserting account %d: %w", account.ID, err)
	}
	return nil
}

func (db *DB) GetAccount(ctx context.Context, id model.ID) (*model.Account, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM accounts WHERE id = ?`, int64(id),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", uint64(id))
		}
		return nil, fmt.Errorf("sqlite: getting account %d: %w", id, err)
	}

	var account model.Account
	if err := json.Unmarshal([]byte(doc), &account); err != nil {
		return nil, fmt.Errorf("sqlite: decoding account %d: %w", id, err)
	}
	return &account, nil
}

func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	doc, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("sqlite: encoding account %d: %w", account.ID, err)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET doc = ? WHERE id = ?`,
		string(doc), int64(account.ID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating account %d: %w", account.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("account", uint64(account.ID))
	}
	return nil
}

func (db *DB) InsertUnverified(ctx context.Context, u *model.Unverified) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("sqlite: encoding unverified account %d: %w", u.ID, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO unverified_accounts (id, doc) VALUES (?, ?)`,
		int64(u.ID), string(doc),
	)
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("unverified account", uint64(u.ID))
		}
		return fmt.Errorf("sqlite: inserting unverified account %d: %w", u.ID, err)
	}
	return nil
}

func (db *DB) GetUnverified(ctx context.Context, id model.ID) (*model.Unverified, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc FROM unverified_accounts WHERE id = ?`, int64(id),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundNamed("unverified account")
		}
		return nil, fmt.Errorf("sqlite: getting unverified account %d: %w", id, err)
	}

	var u model.Unverified
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, fmt.Errorf("sqlite: decoding unverified account %d: %w", id, err)
	}
	return &u, nil
}

func (db *DB) UpdateUnverified(ctx context.Context, u *model.Unverified) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("sqlite: encoding unverified account %d: %w", u.ID, err)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE unverified_accounts SET doc = ? WHERE id = ?`,
		string(doc), int64(u.ID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating unverified account %d: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFoundNamed("unverified account")
	}
	return nil
}

func (db *DB) DeleteUnverified(ctx context.Context, id model.ID) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM unverified_accounts WHERE id = ?`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting unverified account %d: %w", id, err)
	}
	return nil
}
