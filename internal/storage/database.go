package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"taxfiler/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDSN turns on foreign keys for every pooled connection, not just the first.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Open connects to the configured sqlite3 or mysql database.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", sqliteDSN(dbCfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			// every pooled connection would otherwise see its own empty database
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		params := dbCfg.Params
		if !strings.Contains(params, "parseTime") {
			if params != "" {
				params += "&"
			}
			params += "parseTime=true"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE,
				email TEXT NOT NULL UNIQUE,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS file_uploads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				filename TEXT NOT NULL,
				file_type TEXT NOT NULL,
				file_size INTEGER NOT NULL,
				file_path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'uploaded',
				ocr_text TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_uploads_user ON file_uploads(user_id)`,
			`CREATE TABLE IF NOT EXISTS tax_filings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				financial_year TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'draft',
				employee_name TEXT NOT NULL DEFAULT '',
				pan TEXT NOT NULL DEFAULT '',
				employer_name TEXT NOT NULL DEFAULT '',
				gross_salary REAL NOT NULL DEFAULT 0,
				basic_salary REAL NOT NULL DEFAULT 0,
				hra REAL NOT NULL DEFAULT 0,
				special_allowance REAL NOT NULL DEFAULT 0,
				deductions_80c REAL NOT NULL DEFAULT 0,
				deductions_80d REAL NOT NULL DEFAULT 0,
				standard_deduction REAL NOT NULL DEFAULT 0,
				tds_deducted REAL NOT NULL DEFAULT 0,
				tax_payable REAL NOT NULL DEFAULT 0,
				form16_data TEXT,
				extracted_data TEXT,
				tax_suggestions TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(user_id, financial_year),
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				role TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS filing_jobs (
				upload_id INTEGER PRIMARY KEY,
				user_id INTEGER NOT NULL,
				filing_id INTEGER,
				stage TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(upload_id) REFERENCES file_uploads(id) ON DELETE CASCADE,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY(filing_id) REFERENCES tax_filings(id) ON DELETE SET NULL
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				username VARCHAR(255) NOT NULL UNIQUE,
				email VARCHAR(255) NOT NULL UNIQUE,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS file_uploads (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				filename VARCHAR(255) NOT NULL,
				file_type VARCHAR(100) NOT NULL,
				file_size BIGINT NOT NULL,
				file_path TEXT NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'uploaded',
				ocr_text MEDIUMTEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_file_uploads_user (user_id),
				CONSTRAINT fk_file_uploads_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tax_filings (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				financial_year VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'draft',
				employee_name VARCHAR(255) NOT NULL DEFAULT '',
				pan VARCHAR(20) NOT NULL DEFAULT '',
				employer_name VARCHAR(255) NOT NULL DEFAULT '',
				gross_salary DOUBLE NOT NULL DEFAULT 0,
				basic_salary DOUBLE NOT NULL DEFAULT 0,
				hra DOUBLE NOT NULL DEFAULT 0,
				special_allowance DOUBLE NOT NULL DEFAULT 0,
				deductions_80c DOUBLE NOT NULL DEFAULT 0,
				deductions_80d DOUBLE NOT NULL DEFAULT 0,
				standard_deduction DOUBLE NOT NULL DEFAULT 0,
				tds_deducted DOUBLE NOT NULL DEFAULT 0,
				tax_payable DOUBLE NOT NULL DEFAULT 0,
				form16_data MEDIUMTEXT,
				extracted_data MEDIUMTEXT,
				tax_suggestions MEDIUMTEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_user_year (user_id, financial_year),
				CONSTRAINT fk_tax_filings_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				role VARCHAR(20) NOT NULL,
				message MEDIUMTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_messages_user (user_id, created_at),
				CONSTRAINT fk_chat_messages_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS filing_jobs (
				upload_id BIGINT UNSIGNED NOT NULL,
				user_id BIGINT UNSIGNED NOT NULL,
				filing_id BIGINT UNSIGNED NULL,
				stage VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (upload_id),
				CONSTRAINT fk_filing_jobs_upload FOREIGN KEY (upload_id) REFERENCES file_uploads(id) ON DELETE CASCADE,
				CONSTRAINT fk_filing_jobs_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				CONSTRAINT fk_filing_jobs_filing FOREIGN KEY (filing_id) REFERENCES tax_filings(id) ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
