package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shareit/internal/domain"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // sqlite3 dialect
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"
)

var ErrConcurrentModification = errors.New("concurrent modification")

// DB is the entity store. A DB returned by WithinTx shares the connection pool
// but routes every statement through the open transaction.
type DB struct {
	conn    *sqlx.DB
	ext     sqlx.ExtContext
	dialect goqu.DialectWrapper
	driver  string
	path    string
	logger  *zerolog.Logger
	inTx    bool
}

var _ domain.Repository = (*DB)(nil)

// NewDB opens a sqlite store at path. ":memory:" keeps everything in process.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return Open(DriverSQLite, path, logger)
}

// Open connects to the store using driver ("sqlite3" or "pgx"/"postgres") and applies the schema.
func Open(driver, dsn string, logger *zerolog.Logger) (*DB, error) {
	driver, err := normalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	connDSN := dsn
	if driver == DriverSQLite {
		if dsn != ":memory:" {
			// Создаем директорию для БД, если её нет
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create database directory: %w", err)
				}
			}
		}
		connDSN = sqliteDSN(dsn)
	}

	conn, err := sqlx.Open(driver, connDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	dialect := goqu.Dialect(dialectPostgres)
	if driver == DriverSQLite {
		// One connection: transactions serialize and ":memory:" stays a single database.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		dialect = goqu.Dialect(dialectSQLite)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		conn:    conn,
		ext:     conn,
		dialect: dialect,
		driver:  driver,
		path:    dsn,
		logger:  logger,
	}

	if err := db.createTables(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("Database initialized")
	return db, nil
}

func normalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// sqliteDSN turns a path into a connection string with foreign keys enforced.
func sqliteDSN(path string) string {
	switch {
	case path == ":memory:":
		return "file::memory:?_foreign_keys=1"
	case !strings.Contains(path, "?"):
		return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1"
	case strings.Contains(path, "_foreign_keys=") || strings.Contains(path, "_fk="):
		return path
	default:
		return path + "&_foreign_keys=1"
	}
}

func (db *DB) createTables(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id ` + idColumn + `,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS item_requests (
            id ` + idColumn + `,
            description TEXT NOT NULL,
            requestor_id BIGINT NOT NULL REFERENCES users(id),
            created_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS items (
            id ` + idColumn + `,
            name TEXT NOT NULL,
            description TEXT NOT NULL,
            available BOOLEAN NOT NULL,
            owner_id BIGINT NOT NULL REFERENCES users(id),
            request_id BIGINT REFERENCES item_requests(id),
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id ` + idColumn + `,
            item_id BIGINT NOT NULL REFERENCES items(id),
            booker_id BIGINT NOT NULL REFERENCES users(id),
            start_at BIGINT NOT NULL,
            end_at BIGINT NOT NULL,
            status TEXT NOT NULL,
            version BIGINT NOT NULL DEFAULT 1,
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS comments (
            id ` + idColumn + `,
            item_id BIGINT NOT NULL REFERENCES items(id),
            author_id BIGINT NOT NULL REFERENCES users(id),
            text TEXT NOT NULL,
            created_at BIGINT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_items_owner_id ON items(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_request_id ON items(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_item_id ON bookings(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_booker_id ON bookings(booker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_start_at ON bookings(start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_item_id ON comments(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_item_requests_requestor_id ON item_requests(requestor_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// WithinTx runs fn inside one transaction. Nested calls reuse the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(repo domain.Repository) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txDB := *db
	txDB.ext = tx
	txDB.inTx = true

	if err := fn(&txDB); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

// insert runs ds and returns the generated id. sqlite reports it through LastInsertId,
// postgres through RETURNING.
func (db *DB) insert(ctx context.Context, ds *goqu.InsertDataset) (int64, error) {
	if db.driver == DriverPostgres {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, err
		}
		var id int64
		if err := sqlx.GetContext(ctx, db.ext, &id, query, args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, err
	}
	result, err := db.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (db *DB) exec(ctx context.Context, query string, args []interface{}) (int64, error) {
	result, err := db.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *DB) get(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, db.ext, dest, query, args...)
}

func (db *DB) selectAll(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, db.ext, dest, query, args...)
}

func (db *DB) from(table string) *goqu.SelectDataset {
	return db.dialect.From(table).Prepared(true)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
