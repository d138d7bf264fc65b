package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	journal, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func TestOpen_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "history.db")

	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = journal.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	if journal.Path() != path {
		t.Errorf("Path() = %s, want %s", journal.Path(), path)
	}
}

func TestJournal_RecordPairing(t *testing.T) {
	journal := openTestJournal(t)

	started := time.Now().Add(-2 * time.Second)
	rec := PairingRecord{
		Port:      18080,
		Outcome:   PairingOutcomeSuccess,
		Transport: "raw",
		PeerURL:   "10.0.0.5:9000",
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	if err := journal.RecordPairing(rec); err != nil {
		t.Fatalf("RecordPairing() error = %v", err)
	}

	records, err := journal.RecentPairings(10)
	if err != nil {
		t.Fatalf("RecentPairings() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.Port != 18080 {
		t.Errorf("Port = %d, want 18080", got.Port)
	}
	if got.Outcome != PairingOutcomeSuccess {
		t.Errorf("Outcome = %s, want %s", got.Outcome, PairingOutcomeSuccess)
	}
	if got.Transport != "raw" {
		t.Errorf("Transport = %s, want raw", got.Transport)
	}
	if got.PeerURL != "10.0.0.5:9000" {
		t.Errorf("PeerURL = %s, want 10.0.0.5:9000", got.PeerURL)
	}
	if got.StartedAt.IsZero() || got.EndedAt.IsZero() {
		t.Error("timestamps should round-trip")
	}
}

func TestJournal_RecentPairings_OrderAndLimit(t *testing.T) {
	journal := openTestJournal(t)

	outcomes := []string{PairingOutcomeTimeout, PairingOutcomeInvalid, PairingOutcomeSuccess}
	for _, outcome := range outcomes {
		rec := PairingRecord{
			Port:      18080,
			Outcome:   outcome,
			StartedAt: time.Now(),
			EndedAt:   time.Now(),
		}
		if err := journal.RecordPairing(rec); err != nil {
			t.Fatalf("RecordPairing() error = %v", err)
		}
	}

	records, err := journal.RecentPairings(2)
	if err != nil {
		t.Fatalf("RecentPairings() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first
	if records[0].Outcome != PairingOutcomeSuccess {
		t.Errorf("first record = %s, want %s", records[0].Outcome, PairingOutcomeSuccess)
	}
	if records[1].Outcome != PairingOutcomeInvalid {
		t.Errorf("second record = %s, want %s", records[1].Outcome, PairingOutcomeInvalid)
	}
}

func TestJournal_RecordLink(t *testing.T) {
	journal := openTestJournal(t)

	rec := LinkRecord{
		ConnectionID: "dev-1",
		Endpoint:     "192.168.1.50:9000",
		Mode:         "request_token",
		Outcome:      LinkOutcomeAuthorized,
		ConnectedAt:  time.Now(),
	}
	if err := journal.RecordLink(rec); err != nil {
		t.Fatalf("RecordLink() error = %v", err)
	}

	records, err := journal.RecentLinks(10)
	if err != nil {
		t.Fatalf("RecentLinks() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.ConnectionID != "dev-1" {
		t.Errorf("ConnectionID = %s, want dev-1", got.ConnectionID)
	}
	if got.Outcome != LinkOutcomeAuthorized {
		t.Errorf("Outcome = %s, want %s", got.Outcome, LinkOutcomeAuthorized)
	}
	if !got.EndedAt.IsZero() {
		t.Error("open session should have zero EndedAt")
	}
}

func TestJournal_MarkLinkClosed(t *testing.T) {
	journal := openTestJournal(t)

	rec := LinkRecord{
		ConnectionID: "dev-1",
		Endpoint:     "192.168.1.50:9000",
		Mode:         "login",
		Outcome:      LinkOutcomeAuthorized,
		ConnectedAt:  time.Now().Add(-time.Minute),
	}
	if err := journal.RecordLink(rec); err != nil {
		t.Fatalf("RecordLink() error = %v", err)
	}

	if err := journal.MarkLinkClosed("dev-1", time.Now()); err != nil {
		t.Fatalf("MarkLinkClosed() error = %v", err)
	}

	records, err := journal.RecentLinks(10)
	if err != nil {
		t.Fatalf("RecentLinks() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].EndedAt.IsZero() {
		t.Error("EndedAt should be set after MarkLinkClosed")
	}
}

func TestJournal_MarkLinkClosed_OnlyNewestOpen(t *testing.T) {
	journal := openTestJournal(t)

	for i := 0; i < 2; i++ {
		rec := LinkRecord{
			ConnectionID: "dev-1",
			Endpoint:     "192.168.1.50:9000",
			Mode:         "login",
			Outcome:      LinkOutcomeAuthorized,
			ConnectedAt:  time.Now(),
		}
		if err := journal.RecordLink(rec); err != nil {
			t.Fatalf("RecordLink() error = %v", err)
		}
	}

	if err := journal.MarkLinkClosed("dev-1", time.Now()); err != nil {
		t.Fatalf("MarkLinkClosed() error = %v", err)
	}

	records, err := journal.RecentLinks(10)
	if err != nil {
		t.Fatalf("RecentLinks() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first: the newest session was the one closed.
	if records[0].EndedAt.IsZero() {
		t.Error("newest session should be closed")
	}
	if !records[1].EndedAt.IsZero() {
		t.Error("older session should remain open")
	}
}

func TestJournal_MarkLinkClosed_NoOpenSession(t *testing.T) {
	journal := openTestJournal(t)

	// No sessions at all: must not error.
	if err := journal.MarkLinkClosed("ghost", time.Now()); err != nil {
		t.Errorf("MarkLinkClosed() error = %v", err)
	}
}

func TestJournal_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rec := PairingRecord{
		Port:      18080,
		Outcome:   PairingOutcomeStopped,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	}
	if err := journal.RecordPairing(rec); err != nil {
		t.Fatalf("RecordPairing() error = %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	records, err := reopened.RecentPairings(10)
	if err != nil {
		t.Fatalf("RecentPairings() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(records))
	}
}
