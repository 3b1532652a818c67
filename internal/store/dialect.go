package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect abstracts the database-specific corners of the schema and driver.
// Query placeholders need no abstraction: both pgx and SQLite accept $1-style
// ordinal parameters natively.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// TablesSQL returns the DDL for all system tables.
	TablesSQL() string

	// MapError inspects a driver error and returns a well-known sentinel error
	// if applicable.
	MapError(err error) error
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "postgres":
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) TablesSQL() string { return postgresTablesSQL }

func (d *PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUniqueViolation
	}
	return err
}

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) TablesSQL() string { return sqliteTablesSQL }

func (d *SQLiteDialect) MapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrUniqueViolation
	}
	return err
}
