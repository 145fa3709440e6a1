package sqlstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Dialect 区分底层数据库在错误语义上的差异，SQL 本身保持通用。
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) isUniqueViolation(err error) bool {
	switch d {
	case Postgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505"
	case SQLite:
		var sqliteErr sqlite3.Error
		return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	default:
		return false
	}
}
