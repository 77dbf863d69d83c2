package database

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
)

type itemRequestRow struct {
	ID          int64  `db:"id"`
	Description string `db:"description"`
	RequestorID int64  `db:"requestor_id"`
	CreatedAt   int64  `db:"created_at"`
}

func (r itemRequestRow) toModel() *models.ItemRequest {
	return &models.ItemRequest{
		ID:          r.ID,
		Description: r.Description,
		RequestorID: r.RequestorID,
		CreatedAt:   fromMillis(r.CreatedAt),
		Items:       []*models.Item{},
	}
}

var itemRequestColumns = []interface{}{"id", "description", "requestor_id", "created_at"}

func (db *DB) CreateItemRequest(ctx context.Context, req *models.ItemRequest) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ds := db.dialect.Insert("item_requests").Prepared(true).Rows(goqu.Record{
		"description":  req.Description,
		"requestor_id": req.RequestorID,
		"created_at":   toMillis(now),
	})

	id, err := db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create item request: %w", err)
	}

	req.ID = id
	req.CreatedAt = now
	if req.Items == nil {
		req.Items = []*models.Item{}
	}
	return nil
}

func (db *DB) GetItemRequest(ctx context.Context, id int64) (*models.ItemRequest, error) {
	var row itemRequestRow
	err := db.get(ctx, &row, db.from("item_requests").Select(itemRequestColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("Request %d not found", id)
		}
		return nil, fmt.Errorf("failed to get item request: %w", err)
	}
	return row.toModel(), nil
}

// ListItemRequestsByRequestor returns the user's own requests, newest first.
func (db *DB) ListItemRequestsByRequestor(ctx context.Context, requestorID int64) ([]*models.ItemRequest, error) {
	ds := db.from("item_requests").Select(itemRequestColumns...).
		Where(goqu.C("requestor_id").Eq(requestorID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	return db.queryItemRequests(ctx, ds)
}

// ListItemRequestsExcluding pages through everybody else's requests, newest first.
func (db *DB) ListItemRequestsExcluding(ctx context.Context, requestorID int64, page models.Page) ([]*models.ItemRequest, error) {
	page = page.Normalize()
	ds := db.from("item_requests").Select(itemRequestColumns...).
		Where(goqu.C("requestor_id").Neq(requestorID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Offset(uint(page.From)).
		Limit(uint(page.Size))
	return db.queryItemRequests(ctx, ds)
}

func (db *DB) queryItemRequests(ctx context.Context, ds *goqu.SelectDataset) ([]*models.ItemRequest, error) {
	var rows []itemRequestRow
	if err := db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list item requests: %w", err)
	}

	requests := make([]*models.ItemRequest, 0, len(rows))
	for _, r := range rows {
		requests = append(requests, r.toModel())
	}
	return requests, nil
}
