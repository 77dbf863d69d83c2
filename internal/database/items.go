package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type itemRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	Available   bool          `db:"available"`
	OwnerID     int64         `db:"owner_id"`
	RequestID   sql.NullInt64 `db:"request_id"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r itemRow) toModel() *models.Item {
	item := &models.Item{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Available:   r.Available,
		OwnerID:     r.OwnerID,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
	if r.RequestID.Valid {
		id := r.RequestID.Int64
		item.RequestID = &id
	}
	return item
}

var itemColumns = []interface{}{
	"id", "name", "description", "available", "owner_id", "request_id", "created_at", "updated_at",
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ds := db.dialect.Insert("items").Prepared(true).Rows(goqu.Record{
		"name":        item.Name,
		"description": item.Description,
		"available":   item.Available,
		"owner_id":    item.OwnerID,
		"request_id":  nullableID(item.RequestID),
		"created_at":  toMillis(now),
		"updated_at":  toMillis(now),
	})

	id, err := db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (db *DB) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	return db.getItem(ctx, db.itemByID(id, false), id)
}

// LockItem reads an item and, on postgres, holds its row lock until the transaction ends,
// so bookings of one item are created one at a time. sqlite transactions already serialize.
func (db *DB) LockItem(ctx context.Context, id int64) (*models.Item, error) {
	return db.getItem(ctx, db.itemByID(id, true), id)
}

func (db *DB) itemByID(id int64, lock bool) *goqu.SelectDataset {
	ds := db.from("items").Select(itemColumns...).Where(goqu.C("id").Eq(id))
	if lock && db.driver == DriverPostgres {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds
}

func (db *DB) getItem(ctx context.Context, ds *goqu.SelectDataset, id int64) (*models.Item, error) {
	var row itemRow
	err := db.get(ctx, &row, ds)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("Item %d not found", id)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return row.toModel(), nil
}

func (db *DB) UpdateItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	query, args, err := db.dialect.Update("items").Prepared(true).
		Set(goqu.Record{
			"name":        item.Name,
			"description": item.Description,
			"available":   item.Available,
			"request_id":  nullableID(item.RequestID),
			"updated_at":  toMillis(now),
		}).
		Where(goqu.C("id").Eq(item.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build item update: %w", err)
	}

	affected, err := db.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("Item %d not found", item.ID)
	}

	item.UpdatedAt = now
	return nil
}

func (db *DB) ListItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error) {
	ds := db.from("items").Select(itemColumns...).
		Where(goqu.C("owner_id").Eq(ownerID)).
		Order(goqu.C("id").Asc())
	return db.queryItems(ctx, ds, "failed to list owner items")
}

// SearchAvailableItems matches text as a case-insensitive substring of name or description.
func (db *DB) SearchAvailableItems(ctx context.Context, text string, page models.Page) ([]*models.Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []*models.Item{}, nil
	}
	page = page.Normalize()
	pattern := "%" + strings.ToLower(text) + "%"

	ds := db.from("items").Select(itemColumns...).
		Where(
			goqu.C("available").Eq(true),
			goqu.Or(
				goqu.Func("LOWER", goqu.C("name")).Like(pattern),
				goqu.Func("LOWER", goqu.C("description")).Like(pattern),
			),
		).
		Order(goqu.C("id").Asc()).
		Offset(uint(page.From)).
		Limit(uint(page.Size))
	return db.queryItems(ctx, ds, "failed to search items")
}

func (db *DB) ListItemsByRequestIDs(ctx context.Context, requestIDs []int64) ([]*models.Item, error) {
	if len(requestIDs) == 0 {
		return []*models.Item{}, nil
	}
	ds := db.from("items").Select(itemColumns...).
		Where(goqu.C("request_id").In(requestIDs)).
		Order(goqu.C("id").Asc())
	return db.queryItems(ctx, ds, "failed to list items by requests")
}

func (db *DB) queryItems(ctx context.Context, ds *goqu.SelectDataset, errMsg string) ([]*models.Item, error) {
	var rows []itemRow
	if err := db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}

	items := make([]*models.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toModel())
	}
	return items, nil
}
