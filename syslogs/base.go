// Package syslogs records REST-layer failures to a local sqlite3
// database so operators can query recent errors without grepping
// process logs.
package syslogs

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrLog is one REST response with status 400 or above.
type ErrLog struct {
	Method       string `json:"method"`
	Path         string `json:"path"`
	Status       int    `json:"status"`
	Timestamp    int64  `json:"timestamp"`
	ErrorMessage string `json:"error_message"`
}

var db *sql.DB

// InitEventLogDB opens (or creates) the sqlite3 database at dbPath.
func InitEventLogDB(dbPath string) error {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err = createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

func createTables() error {
	errLogTable := `CREATE TABLE IF NOT EXISTS ErrLog (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		Method TEXT,
		Path TEXT,
		Status INTEGER,
		Timestamp INTEGER,
		ErrorMessage TEXT
	)`
	if _, err := db.Exec(errLogTable); err != nil {
		return fmt.Errorf("failed to create ErrLog table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_errlog_status ON ErrLog(Status);`); err != nil {
		return fmt.Errorf("failed to create index on ErrLog.Status: %w", err)
	}
	return nil
}

// InsertErrLog records one failed request. A no-op (not a panic) if
// InitEventLogDB was never called, since a logging dependency should
// never be the reason a request fails.
func InsertErrLog(log ErrLog) error {
	if db == nil {
		return nil
	}
	query := `INSERT INTO ErrLog (Method, Path, Status, Timestamp, ErrorMessage)
		VALUES (?, ?, ?, ?, ?)`
	_, err := db.Exec(query, log.Method, log.Path, log.Status, log.Timestamp, log.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert ErrLog: %w", err)
	}
	return nil
}

// QueryErrLogs returns the most recent failures, newest first.
func QueryErrLogs(limit, offset int) ([]ErrLog, error) {
	query := `SELECT Method, Path, Status, Timestamp, ErrorMessage FROM ErrLog ORDER BY ID DESC LIMIT ? OFFSET ?`
	rows, err := db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ErrLogs: %w", err)
	}
	defer rows.Close()

	var logs []ErrLog
	for rows.Next() {
		var log ErrLog
		if err := rows.Scan(&log.Method, &log.Path, &log.Status, &log.Timestamp, &log.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan ErrLog: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// Close releases the underlying database handle.
func Close() error {
	if db == nil {
		return nil
	}
	return db.Close()
}
