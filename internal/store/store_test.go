package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"imgrelay-backend/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "test",
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS n FROM users")
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if n, _ := row["n"].(int64); n != 1 {
		t.Fatalf("expected exactly one user after double bootstrap, got %v", row["n"])
	}
}

func TestBootstrapCreatesDefaultAdmin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	row, err := QueryRow(ctx, s.DB,
		"SELECT id, username FROM users WHERE username = $1", DefaultAdminUser)
	if err != nil {
		t.Fatalf("default admin missing: %v", err)
	}
	if id, _ := row["id"].(int64); id != 1 {
		t.Fatalf("default admin should be user 1, got %v", row["id"])
	}
}

func TestQueryRowNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	_, err := QueryRow(ctx, s.DB, "SELECT id FROM users WHERE username = $1", "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteUniqueViolationMapped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	_, err := Exec(ctx, s.DB,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2)",
		DefaultAdminUser, "hash")
	if err == nil {
		t.Fatal("duplicate username accepted")
	}
	if !errors.Is(s.Dialect.MapError(err), ErrUniqueViolation) {
		t.Fatalf("duplicate not mapped to ErrUniqueViolation: %v", err)
	}
}

func TestPostgresDialectMapsUniqueViolation(t *testing.T) {
	d := &PostgresDialect{}

	dup := &pgconn.PgError{Code: "23505"}
	if !errors.Is(d.MapError(dup), ErrUniqueViolation) {
		t.Fatal("23505 not mapped to ErrUniqueViolation")
	}

	other := &pgconn.PgError{Code: "23503"}
	if errors.Is(d.MapError(other), ErrUniqueViolation) {
		t.Fatal("foreign key violation wrongly mapped to unique violation")
	}
}

func TestNewDialect(t *testing.T) {
	if d := NewDialect("postgres"); d.Name() != "postgres" || d.DriverName() != "pgx" {
		t.Fatalf("postgres dialect misconfigured: %s/%s", d.Name(), d.DriverName())
	}
	if d := NewDialect("sqlite"); d.Name() != "sqlite" || d.DriverName() != "sqlite" {
		t.Fatalf("sqlite dialect misconfigured: %s/%s", d.Name(), d.DriverName())
	}
}
