package database

import (
	"context"
	"testing"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")

	item := createItem(t, db, owner.ID, "Drill")
	assert.NotZero(t, item.ID)

	found, err := db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", found.Name)
	assert.True(t, found.Available)
	assert.Nil(t, found.RequestID)

	found.Available = false
	found.Description = "Cordless drill"
	require.NoError(t, db.UpdateItem(ctx, found))

	found, err = db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, found.Available)
	assert.Equal(t, "Cordless drill", found.Description)

	createItem(t, db, owner.ID, "Saw")
	items, err := db.ListItemsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Less(t, items[0].ID, items[1].ID)

	_, err = db.GetItem(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchAvailableItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")

	createItem(t, db, owner.ID, "Power Drill")
	hidden := createItem(t, db, owner.ID, "Old drill")
	hidden.Available = false
	require.NoError(t, db.UpdateItem(ctx, hidden))
	other := &models.Item{Name: "Ladder", Description: "Good for DRILLING ceilings", Available: true, OwnerID: owner.ID}
	require.NoError(t, db.CreateItem(ctx, other))

	found, err := db.SearchAvailableItems(ctx, "dRiLl", models.Page{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Power Drill", found[0].Name)
	assert.Equal(t, "Ladder", found[1].Name)

	found, err = db.SearchAvailableItems(ctx, "   ", models.Page{})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = db.SearchAvailableItems(ctx, "drill", models.Page{From: 1, Size: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ladder", found[0].Name)
}

func TestItemRequestsAndAnswers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	first := &models.ItemRequest{Description: "Need a tent", RequestorID: alice.ID}
	require.NoError(t, db.CreateItemRequest(ctx, first))
	second := &models.ItemRequest{Description: "Need a kayak", RequestorID: alice.ID}
	require.NoError(t, db.CreateItemRequest(ctx, second))

	answer := &models.Item{Name: "Tent", Description: "2 person", Available: true, OwnerID: bob.ID, RequestID: &first.ID}
	require.NoError(t, db.CreateItem(ctx, answer))

	own, err := db.ListItemRequestsByRequestor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, second.ID, own[0].ID, "newest first")

	others, err := db.ListItemRequestsExcluding(ctx, bob.ID, models.Page{})
	require.NoError(t, err)
	assert.Len(t, others, 2)

	others, err = db.ListItemRequestsExcluding(ctx, alice.ID, models.Page{})
	require.NoError(t, err)
	assert.Empty(t, others)

	items, err := db.ListItemsByRequestIDs(ctx, []int64{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].RequestID)
	assert.Equal(t, first.ID, *items[0].RequestID)

	_, err = db.GetItemRequest(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	author := createUser(t, db, "author")
	item := createItem(t, db, owner.ID, "Bike")

	comment := &models.Comment{ItemID: item.ID, AuthorID: author.ID, Text: "Rides well"}
	require.NoError(t, db.CreateComment(ctx, comment))
	assert.NotZero(t, comment.ID)

	comments, err := db.ListCommentsByItemIDs(ctx, []int64{item.ID})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "author", comments[0].AuthorName)
	assert.Equal(t, "Rides well", comments[0].Text)

	comments, err = db.ListCommentsByItemIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestLockItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	item := createItem(t, db, owner.ID, "Tent")

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		locked, err := repo.LockItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Name, locked.Name)

		_, err = repo.LockItem(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestItemByID_RowLock(t *testing.T) {
	pg := &DB{dialect: goqu.Dialect(dialectPostgres), driver: DriverPostgres}
	query, _, err := pg.itemByID(7, true).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "FOR UPDATE")

	query, _, err = pg.itemByID(7, false).ToSQL()
	require.NoError(t, err)
	assert.NotContains(t, query, "FOR UPDATE")

	lite := &DB{dialect: goqu.Dialect(dialectSQLite), driver: DriverSQLite}
	query, _, err = lite.itemByID(7, true).ToSQL()
	require.NoError(t, err)
	assert.NotContains(t, query, "FOR UPDATE")
}
