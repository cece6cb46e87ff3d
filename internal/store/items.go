package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stocklog/stocklog/internal/model"
)

// ItemInput is the proposed state of an item for create and update calls.
type ItemInput struct {
	Name              string
	Description       string
	Quantity          int64
	Price             decimal.Decimal
	LowStockThreshold *int64
	CategoryID        *int64
}

func validateItemInput(in *ItemInput) error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.Quantity < 0 {
		return &ValidationError{Field: "quantity", Message: "quantity cannot be less than 0"}
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "price cannot be less than 0"}
	}
	if in.LowStockThreshold != nil && *in.LowStockThreshold < 0 {
		return &ValidationError{Field: "low_stock_threshold", Message: "threshold cannot be less than 0"}
	}
	return nil
}

// categoryExists checks a category reference inside the caller's transaction.
func categoryExists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking category: %w", err)
	}
	return true, nil
}

// CreateItem creates a new item owned by ownerID.
func CreateItem(ctx context.Context, db *sql.DB, in ItemInput, ownerID int64) (*model.Item, error) {
	if err := validateItemInput(&in); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if in.CategoryID != nil {
		ok, err := categoryExists(ctx, tx, *in.CategoryID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ValidationError{Field: "category_id", Message: "category does not exist"}
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (name, description, quantity, price, low_stock_threshold, category_id, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Quantity, in.Price.String(), in.LowStockThreshold, in.CategoryID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

const itemColumns = `i.id, i.name, i.description, i.quantity, i.price,
	        i.low_stock_threshold, i.category_id, i.owner_id, i.image_mime,
	        i.created_at, i.updated_at, c.name AS category_name, u.email AS owner_email`

const itemJoins = ` FROM items i
	 LEFT JOIN categories c ON c.id = i.category_id
	 JOIN users u ON u.id = i.owner_id`

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{}
	var description, imageMime, categoryName, ownerEmail sql.NullString
	err := row.Scan(&item.ID, &item.Name, &description, &item.Quantity, &item.Price,
		&item.LowStockThreshold, &item.CategoryID, &item.OwnerID, &imageMime,
		&item.CreatedAt, &item.UpdatedAt, &categoryName, &ownerEmail)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.ImageMime = imageMime.String
	item.CategoryName = categoryName.String
	item.OwnerEmail = ownerEmail.String
	return item, nil
}

// GetItem returns an item by ID with category and owner names joined.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+itemJoins+` WHERE i.id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemFilter narrows and orders an item listing.
type ItemFilter struct {
	OwnerID    int64 // restrict to this owner; 0 means all owners
	CategoryID int64
	Search     string // substring match on name
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	SortBy     string // "quantity" or "price"; default is name
	SortDesc   bool
	LowStock   bool // only items below their threshold
}

// ListItems returns items matching the filter.
func ListItems(ctx context.Context, db *sql.DB, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + itemJoins + ` WHERE 1=1`
	var args []any

	if filter.OwnerID > 0 {
		query += ` AND i.owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.CategoryID > 0 {
		query += ` AND i.category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if filter.Search != "" {
		query += ` AND i.name LIKE ?`
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.MinPrice != nil {
		query += ` AND CAST(i.price AS REAL) >= ?`
		args = append(args, filter.MinPrice.InexactFloat64())
	}
	if filter.MaxPrice != nil {
		query += ` AND CAST(i.price AS REAL) <= ?`
		args = append(args, filter.MaxPrice.InexactFloat64())
	}
	if filter.LowStock {
		query += ` AND i.low_stock_threshold IS NOT NULL AND i.quantity < i.low_stock_threshold`
	}

	switch filter.SortBy {
	case "quantity":
		query += ` ORDER BY i.quantity`
	case "price":
		query += ` ORDER BY CAST(i.price AS REAL)`
	default:
		query += ` ORDER BY i.name`
	}
	if filter.SortDesc {
		query += ` DESC`
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListLowStock returns items whose quantity is below their threshold.
// Items without a threshold are not monitored and never appear.
func ListLowStock(ctx context.Context, db *sql.DB, ownerID int64) ([]model.Item, error) {
	return ListItems(ctx, db, ItemFilter{OwnerID: ownerID, LowStock: true})
}

// getItemForUpdate reads the current item state inside the transaction, so
// the change derived later is relative to the row this transaction overwrites.
func getItemForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Item, error) {
	item := &model.Item{}
	var description sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, description, quantity, price, low_stock_threshold,
		        category_id, owner_id, created_at, updated_at
		 FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &description, &item.Quantity, &item.Price,
		&item.LowStockThreshold, &item.CategoryID, &item.OwnerID,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading item for update: %w", err)
	}
	item.Description = description.String
	return item, nil
}

// UpdateItem replaces an item's state and records the change in the same
// transaction. Either both the update and its log entry commit, or neither
// does. Returns the updated item and the log entry, which is nil when the
// mutation was not an auditable event.
//
// Authorization (owner or admin) is the HTTP layer's job, via
// model.CanModifyItem; the store does not authenticate.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, in ItemInput, actorID int64, reason string) (*model.Item, *model.ChangeLog, error) {
	if err := validateItemInput(&in); err != nil {
		return nil, nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := getItemForUpdate(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		return nil, nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}

	if in.CategoryID != nil {
		ok, err := categoryExists(ctx, tx, *in.CategoryID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, &ValidationError{Field: "category_id", Message: "category does not exist"}
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, quantity = ?, price = ?,
		        low_stock_threshold = ?, category_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Name, in.Description, in.Quantity, in.Price.String(),
		in.LowStockThreshold, in.CategoryID, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating item: %w", err)
	}

	next := *prev
	next.Name = in.Name
	next.Description = in.Description
	next.Quantity = in.Quantity
	next.Price = in.Price
	next.LowStockThreshold = in.LowStockThreshold
	next.CategoryID = in.CategoryID

	entry, err := recordChange(ctx, tx, prev, &next, actorID, reason)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing item update: %w", err)
	}

	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	return item, entry, nil
}

// AdjustItemQuantity applies a signed quantity delta and records it, in one
// transaction. The delta must be non-zero and must not take the quantity
// below zero.
func AdjustItemQuantity(ctx context.Context, db *sql.DB, id, delta int64, actorID int64, reason string) (*model.Item, *model.ChangeLog, error) {
	if delta == 0 {
		return nil, nil, &ValidationError{Field: "change_quantity", Message: "change amount cannot be zero"}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := getItemForUpdate(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		return nil, nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}

	newQty := prev.Quantity + delta
	if newQty < 0 {
		return nil, nil, &ValidationError{
			Field:   "change_quantity",
			Message: fmt.Sprintf("change would result in negative quantity: %d + %d = %d", prev.Quantity, delta, newQty),
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newQty, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("adjusting item quantity: %w", err)
	}

	next := *prev
	next.Quantity = newQty

	entry, err := recordChange(ctx, tx, prev, &next, actorID, reason)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing quantity adjustment: %w", err)
	}

	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	return item, entry, nil
}

// DeleteItem deletes an item. Its change-log entries cascade with it.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetItemImage sets an item's image data.
func SetItemImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}
