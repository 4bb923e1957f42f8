package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrDuplicateFiling   = errors.New("tax filing already exists for this financial year")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateUser     = errors.New("username or email already registered")
)

// Service is the single relational store for users, uploads, filings, jobs and chat.
type Service struct {
	db     *sql.DB
	cipher *textCipher
	now    func() time.Time
}

type Options struct {
	// EncryptOCRText seals stored OCR text with the key from TAXFILER_DATA_KEY.
	EncryptOCRText bool
}

// NewService builds a records service.
func NewService(db *sql.DB, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	s := &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
	if opts.EncryptOCRText {
		c, err := newTextCipherFromEnv()
		if err != nil {
			return nil, fmt.Errorf("init ocr text cipher: %w", err)
		}
		s.cipher = c
	}
	return s, nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
