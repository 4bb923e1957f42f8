package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"taxfiler/internal/config"
)

func TestMigrateIsIdempotentAndEnforcesFilingUniqueness(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite3"); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}

	now := time.Now().UTC()
	if _, err := db.Exec(`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES ('a', 'a@x.io', 'h', ?, ?)`, now, now); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	insert := `INSERT INTO tax_filings (user_id, financial_year, status, created_at, updated_at) VALUES (1, '2025-26', 'draft', ?, ?)`
	if _, err := db.Exec(insert, now, now); err != nil {
		t.Fatalf("first filing: %v", err)
	}
	if _, err := db.Exec(insert, now, now); err == nil {
		t.Fatalf("expected unique violation for duplicate (user, year)")
	}
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	cases := map[string]string{
		":memory:":               ":memory:?_foreign_keys=on",
		"data/taxfiler.db":       "data/taxfiler.db?_foreign_keys=on",
		"file:t.db?cache=shared": "file:t.db?cache=shared&_foreign_keys=on",
		"t.db?_foreign_keys=off": "t.db?_foreign_keys=off",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "taxfiler.db")
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: dsn}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// each held connection forces the pool to open a new one
	conns := make([]*sql.Conn, 0, 3)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		conn, err := db.Conn(context.Background())
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		conns = append(conns, conn)
		_, err = conn.ExecContext(context.Background(),
			`INSERT INTO tax_filings (user_id, financial_year, status, created_at, updated_at) VALUES (999, ?, 'draft', ?, ?)`,
			fmt.Sprintf("20%d-2%d", 20+i, 1+i), now, now)
		if err == nil {
			t.Fatalf("conn %d accepted a filing for a missing user", i)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {}}}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if err := Migrate(nil, "postgres"); err == nil {
		t.Fatalf("expected unsupported migration error")
	}
}
