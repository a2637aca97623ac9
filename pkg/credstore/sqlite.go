package credstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/aussiebroadwan/passport/pkg/credstore/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// SQLite keeps credentials as rows of a key/value cache table. All three
// keys are written in one transaction.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn and applies the cache schema.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	// One writer keeps SQLITE_BUSY out of concurrent Set calls
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: err}
	}
	return s, nil
}

func (s *SQLite) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context) (Credentials, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM cache WHERE key IN (?, ?, ?)`,
		KeyToken, KeyExpire, KeyRefreshToken,
	)
	if err != nil {
		return Credentials{}, &StoreError{Op: "get", Err: err}
	}
	defer rows.Close()

	var creds Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credentials{}, &StoreError{Op: "get", Err: err}
		}
		switch key {
		case KeyToken:
			creds.AccessToken = value
		case KeyRefreshToken:
			creds.RefreshToken = value
		case KeyExpire:
			// A corrupt expiry is treated as unknown rather than fatal
			creds.ExpiresAt, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	if err := rows.Err(); err != nil {
		return Credentials{}, &StoreError{Op: "get", Err: err}
	}
	return creds, nil
}

func (s *SQLite) Set(ctx context.Context, creds Credentials) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		values := map[string]string{
			KeyToken:        creds.AccessToken,
			KeyRefreshToken: creds.RefreshToken,
			KeyExpire:       strconv.FormatInt(creds.ExpiresAt, 10),
		}
		for key, value := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cache (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE key IN (?, ?, ?)`,
		KeyToken, KeyExpire, KeyRefreshToken,
	)
	if err != nil {
		return &StoreError{Op: "clear", Err: err}
	}
	return nil
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
