package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/stocklog/stocklog/internal/model"
)

// diffItems compares the fixed set of tracked fields (name, description,
// quantity, price, category) between two item states and returns one
// FieldChange per differing field.
func diffItems(prev, next *model.Item) []model.FieldChange {
	var changes []model.FieldChange

	add := func(field, old, new string) {
		if old != new {
			changes = append(changes, model.FieldChange{Field: field, Old: old, New: new})
		}
	}

	formatCategory := func(id *int64) string {
		if id == nil {
			return ""
		}
		return strconv.FormatInt(*id, 10)
	}

	add("name", prev.Name, next.Name)
	add("description", prev.Description, next.Description)
	add("quantity", strconv.FormatInt(prev.Quantity, 10), strconv.FormatInt(next.Quantity, 10))
	// Numeric comparison, not string: "10" and "10.00" are the same price.
	if !prev.Price.Equal(next.Price) {
		changes = append(changes, model.FieldChange{Field: "price", Old: prev.Price.String(), New: next.Price.String()})
	}
	add("category", formatCategory(prev.CategoryID), formatCategory(next.CategoryID))

	return changes
}

// recordChange derives an audit record from a before/after pair of item
// states and persists it in the caller's transaction, so the item update
// and its log entry commit or roll back together.
//
// A mutation is auditable when the quantity or price moved, or when tracked
// fields changed and the caller supplied a reason. A metadata-only edit
// without a reason, or a pure no-op, produces no entry and no error.
func recordChange(ctx context.Context, tx *sql.Tx, prev, next *model.Item, actorID int64, reason string) (*model.ChangeLog, error) {
	deltaQuantity := next.Quantity - prev.Quantity

	var deltaPrice *decimal.Decimal
	if !next.Price.Equal(prev.Price) {
		d := next.Price.Sub(prev.Price)
		deltaPrice = &d
	}

	changes := diffItems(prev, next)

	if deltaQuantity == 0 && deltaPrice == nil {
		if reason == "" || len(changes) == 0 {
			return nil, nil
		}
	}
	if reason == "" {
		reason = model.DefaultChangeReason
	}

	var changeQuantity *int64
	if deltaQuantity != 0 {
		changeQuantity = &deltaQuantity
	}

	// The item update has already enforced this, but the recorder validates
	// the snapshots it was handed on its own.
	if changeQuantity != nil && prev.Quantity+*changeQuantity < 0 {
		return nil, &ValidationError{
			Field:   "change_quantity",
			Message: "change would result in negative inventory",
		}
	}
	if changeQuantity == nil && deltaPrice == nil && len(changes) == 0 {
		return nil, &ValidationError{Field: "change_quantity", Message: "nothing to log"}
	}

	var detailsArg any
	if len(changes) > 0 {
		data, err := json.Marshal(changes)
		if err != nil {
			return nil, fmt.Errorf("encoding change details: %w", err)
		}
		detailsArg = string(data)
	}

	var priceArg any
	if deltaPrice != nil {
		priceArg = deltaPrice.String()
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO change_logs (item_id, change_quantity, change_price, reason, details, changed_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		prev.ID, changeQuantity, priceArg, reason, detailsArg, actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("recording change: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting change log id: %w", err)
	}

	entry := &model.ChangeLog{
		ID:             id,
		ItemID:         prev.ID,
		ChangeQuantity: changeQuantity,
		ChangePrice:    deltaPrice,
		Reason:         reason,
		Details:        changes,
		ChangedBy:      actorID,
	}
	err = tx.QueryRowContext(ctx,
		`SELECT changed_at FROM change_logs WHERE id = ?`, id,
	).Scan(&entry.ChangedAt)
	if err != nil {
		return nil, fmt.Errorf("reading change timestamp: %w", err)
	}

	return entry, nil
}

// ChangeLogFilter narrows a change-log listing.
type ChangeLogFilter struct {
	ItemID  int64 // entries for this item; 0 means all items
	ActorID int64 // entries made by this user; 0 means all users
}

const changeLogColumns = `l.id, l.item_id, l.change_quantity, l.change_price,
	        l.reason, l.details, l.changed_at, l.changed_by,
	        i.name AS item_name, u.email AS changed_by_email`

const changeLogJoins = ` FROM change_logs l
	 JOIN items i ON i.id = l.item_id
	 JOIN users u ON u.id = l.changed_by`

func scanChangeLog(row interface{ Scan(...any) error }) (*model.ChangeLog, error) {
	entry := &model.ChangeLog{}
	var changeQuantity sql.NullInt64
	var changePrice, details sql.NullString
	err := row.Scan(&entry.ID, &entry.ItemID, &changeQuantity, &changePrice,
		&entry.Reason, &details, &entry.ChangedAt, &entry.ChangedBy,
		&entry.ItemName, &entry.ChangedByEmail)
	if err != nil {
		return nil, err
	}
	if changeQuantity.Valid {
		entry.ChangeQuantity = &changeQuantity.Int64
	}
	if changePrice.Valid {
		d, err := decimal.NewFromString(changePrice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing price change: %w", err)
		}
		entry.ChangePrice = &d
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("decoding change details: %w", err)
		}
	}
	return entry, nil
}

// GetChangeLog returns a change-log entry by ID.
func GetChangeLog(ctx context.Context, db *sql.DB, id int64) (*model.ChangeLog, error) {
	row := db.QueryRowContext(ctx, `SELECT `+changeLogColumns+changeLogJoins+` WHERE l.id = ?`, id)
	entry, err := scanChangeLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting change log: %w", err)
	}
	return entry, nil
}

// ListChangeLogs returns change-log entries matching the filter, newest first.
func ListChangeLogs(ctx context.Context, db *sql.DB, filter ChangeLogFilter) ([]model.ChangeLog, error) {
	query := `SELECT ` + changeLogColumns + changeLogJoins + ` WHERE 1=1`
	var args []any

	if filter.ItemID > 0 {
		query += ` AND l.item_id = ?`
		args = append(args, filter.ItemID)
	}
	if filter.ActorID > 0 {
		query += ` AND l.changed_by = ?`
		args = append(args, filter.ActorID)
	}

	query += ` ORDER BY l.changed_at DESC, l.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing change logs: %w", err)
	}
	defer rows.Close()

	var entries []model.ChangeLog
	for rows.Next() {
		entry, err := scanChangeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning change log: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}
