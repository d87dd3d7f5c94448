package store

import (
	"path/filepath"
	"testing"
)

func TestAuditLog_RecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if err := log.Record("10.0.0.1:27015", "status", "hostname: test\n", "corr-1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record("10.0.0.1:27015", "changelevel de_dust2", "ok", "corr-2"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record("10.0.0.2:27015", "status", "hostname: other\n", "corr-3"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := log.Recent("10.0.0.1:27015", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for endpoint, got %d", len(entries))
	}
	// newest first
	if entries[0].Command != "changelevel de_dust2" {
		t.Errorf("expected newest entry first, got %q", entries[0].Command)
	}
	if entries[0].CorrelationID != "corr-2" {
		t.Errorf("expected correlation id corr-2, got %q", entries[0].CorrelationID)
	}
	if entries[1].Command != "status" {
		t.Errorf("expected second entry status, got %q", entries[1].Command)
	}

	limited, err := log.Recent("10.0.0.1:27015", 1)
	if err != nil {
		t.Fatalf("Recent with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to bound result to 1, got %d", len(limited))
	}

	none, err := log.Recent("10.0.0.3:27015", 10)
	if err != nil {
		t.Fatalf("Recent for unknown endpoint: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no entries for unknown endpoint, got %d", len(none))
	}
}

func TestAuditLog_Close(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
