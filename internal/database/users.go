package database

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
)

type userRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r userRow) toModel() *models.User {
	return &models.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

var userColumns = []interface{}{"id", "name", "email", "created_at", "updated_at"}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ds := db.dialect.Insert("users").Prepared(true).Rows(goqu.Record{
		"name":       user.Name,
		"email":      user.Email,
		"created_at": toMillis(now),
		"updated_at": toMillis(now),
	})

	id, err := db.insert(ctx, ds)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("Email %s is already in use", user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return db.queryUser(ctx, goqu.C("id").Eq(id), fmt.Sprintf("User %d not found", id))
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, goqu.C("email").Eq(email), fmt.Sprintf("User with email %s not found", email))
}

func (db *DB) queryUser(ctx context.Context, where goqu.Expression, notFound string) (*models.User, error) {
	var row userRow
	err := db.get(ctx, &row, db.from("users").Select(userColumns...).Where(where))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("%s", notFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toModel(), nil
}

func (db *DB) UpdateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	query, args, err := db.dialect.Update("users").Prepared(true).
		Set(goqu.Record{
			"name":       user.Name,
			"email":      user.Email,
			"updated_at": toMillis(now),
		}).
		Where(goqu.C("id").Eq(user.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build user update: %w", err)
	}

	affected, err := db.exec(ctx, query, args)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("Email %s is already in use", user.Email)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("User %d not found", user.ID)
	}

	user.UpdatedAt = now
	return nil
}

func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	query, args, err := db.dialect.Delete("users").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build user delete: %w", err)
	}

	affected, err := db.exec(ctx, query, args)
	if isForeignKeyViolation(err) {
		return domain.Conflict("User %d still has items, bookings, comments or requests", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("User %d not found", id)
	}
	return nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	var rows []userRow
	if err := db.selectAll(ctx, &rows, db.from("users").Select(userColumns...).Order(goqu.C("id").Asc())); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}
