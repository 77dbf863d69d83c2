package database

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
)

type commentRow struct {
	ID         int64  `db:"id"`
	ItemID     int64  `db:"item_id"`
	AuthorID   int64  `db:"author_id"`
	AuthorName string `db:"author_name"`
	Text       string `db:"text"`
	CreatedAt  int64  `db:"created_at"`
}

func (db *DB) CreateComment(ctx context.Context, comment *models.Comment) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ds := db.dialect.Insert("comments").Prepared(true).Rows(goqu.Record{
		"item_id":    comment.ItemID,
		"author_id":  comment.AuthorID,
		"text":       comment.Text,
		"created_at": toMillis(now),
	})

	id, err := db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	comment.ID = id
	comment.CreatedAt = now
	return nil
}

// ListCommentsByItemIDs returns comments with author names resolved, oldest first.
func (db *DB) ListCommentsByItemIDs(ctx context.Context, itemIDs []int64) ([]*models.Comment, error) {
	if len(itemIDs) == 0 {
		return []*models.Comment{}, nil
	}

	ds := db.dialect.From(goqu.T("comments").As("c")).Prepared(true).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("c.author_id")))).
		Select(
			goqu.I("c.id"),
			goqu.I("c.item_id"),
			goqu.I("c.author_id"),
			goqu.I("u.name").As("author_name"),
			goqu.I("c.text"),
			goqu.I("c.created_at"),
		).
		Where(goqu.I("c.item_id").In(itemIDs)).
		Order(goqu.I("c.created_at").Asc(), goqu.I("c.id").Asc())

	var rows []commentRow
	if err := db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	comments := make([]*models.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, &models.Comment{
			ID:         r.ID,
			ItemID:     r.ItemID,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			Text:       r.Text,
			CreatedAt:  fromMillis(r.CreatedAt),
		})
	}
	return comments, nil
}
