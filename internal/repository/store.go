package repository

import (
	"context"
	"database/sql"

	"items-api/internal/models"
	"items-api/pkg/logger"
)

// Store runs item and user queries against an explicit database handle.
type Store struct {
	db *sql.DB
}

// New returns a Store over the given pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const itemColumns = `id, title, description, done, user_id, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }, it *models.Item) error {
	return row.Scan(&it.ID, &it.Title, &it.Description, &it.Done, &it.UserID, &it.CreatedAt, &it.UpdatedAt)
}

// GetUser returns the user with the given id, or nil if absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, is_admin, active, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.IsAdmin, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error(ctx, "Repository GetUser failed", "error", err, "user_id", id)
		return nil, err
	}
	return &u, nil
}

// CreateItem inserts a new item and fills in its generated fields.
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO items (title, description, done, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+itemColumns,
		item.Title, item.Description, item.Done, item.UserID)
	if err := scanItem(row, item); err != nil {
		logger.Error(ctx, "Repository CreateItem failed", "error", err)
		return err
	}
	return nil
}

// ListItems returns one page of the full item collection in insertion order.
func (s *Store) ListItems(ctx context.Context, offset, limit int) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		logger.Error(ctx, "Repository ListItems failed", "error", err)
		return nil, err
	}
	return collectItems(ctx, rows)
}

// ListUserItems returns ALL items owned by the user, in insertion order.
// Pagination for the per-user listing is applied by the caller.
func (s *Store) ListUserItems(ctx context.Context, userID int64) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		logger.Error(ctx, "Repository ListUserItems failed", "error", err, "user_id", userID)
		return nil, err
	}
	return collectItems(ctx, rows)
}

func collectItems(ctx context.Context, rows *sql.Rows) ([]models.Item, error) {
	defer rows.Close()
	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := scanItem(rows, &it); err != nil {
			logger.Error(ctx, "Repository scan item failed", "error", err)
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem returns the item with the given id and owner, or nil if absent.
func (s *Store) GetItem(ctx context.Context, itemID, userID int64) (*models.Item, error) {
	var it models.Item
	err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 AND user_id = $2`, itemID, userID), &it)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error(ctx, "Repository GetItem failed", "error", err, "item_id", itemID)
		return nil, err
	}
	return &it, nil
}

// UpdateItem merges the patch into the stored row and returns the updated
// item, or nil if no row matches id and owner. Empty title/description leave
// the stored value in place; done applies whenever non-nil.
func (s *Store) UpdateItem(ctx context.Context, itemID, userID int64, upd *models.ItemUpdate) (*models.Item, error) {
	title, description := "", ""
	if upd.Title != nil {
		title = *upd.Title
	}
	if upd.Description != nil {
		description = *upd.Description
	}
	var it models.Item
	err := scanItem(s.db.QueryRowContext(ctx,
		`UPDATE items SET title = COALESCE(NULLIF($1,''), title),
		 description = COALESCE(NULLIF($2,''), description),
		 done = COALESCE($3, done), updated_at = NOW()
		 WHERE id = $4 AND user_id = $5
		 RETURNING `+itemColumns,
		title, description, upd.Done, itemID, userID), &it)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error(ctx, "Repository UpdateItem failed", "error", err, "item_id", itemID)
		return nil, err
	}
	return &it, nil
}

// DeleteItem removes the item with the given id and owner. Returns whether a
// row was deleted.
func (s *Store) DeleteItem(ctx context.Context, itemID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		logger.Error(ctx, "Repository DeleteItem failed", "error", err, "item_id", itemID)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
