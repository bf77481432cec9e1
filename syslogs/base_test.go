package syslogs

import (
	"path/filepath"
	"testing"
)

func TestInsertAndQueryErrLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	if err := InitEventLogDB(dbPath); err != nil {
		t.Fatalf("InitEventLogDB: %v", err)
	}
	defer Close()
	defer func() { db = nil }()

	entry := ErrLog{Method: "GET", Path: "/tx/deadbeef", Status: 404, Timestamp: 1700000000, ErrorMessage: "transaction not found"}
	if err := InsertErrLog(entry); err != nil {
		t.Fatalf("InsertErrLog: %v", err)
	}

	logs, err := QueryErrLogs(10, 0)
	if err != nil {
		t.Fatalf("QueryErrLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Path != entry.Path || logs[0].Status != entry.Status {
		t.Fatalf("unexpected log entry: %+v", logs[0])
	}
}

func TestInsertErrLogNoopWithoutInit(t *testing.T) {
	saved := db
	db = nil
	defer func() { db = saved }()

	if err := InsertErrLog(ErrLog{Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("expected InsertErrLog to be a no-op before InitEventLogDB, got %v", err)
	}
}
