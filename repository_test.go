package main

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestNextEventID(t *testing.T) {
	repo := newTestRepo(t)

	next, err := repo.NextEventID()
	if err != nil {
		t.Fatal(err)
	}
	if next != 1 {
		t.Errorf("NextEventID on empty table = %d, want 1", next)
	}

	if err := repo.SaveEvent(Event{ID: 5, Name: "Meetup"}); err != nil {
		t.Fatal(err)
	}
	next, err = repo.NextEventID()
	if err != nil {
		t.Fatal(err)
	}
	if next != 6 {
		t.Errorf("NextEventID after id 5 = %d, want 6", next)
	}
}

func TestSaveUserUpsert(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveUser(User{ID: 10, FirstName: "Иван", LastName: "Петров"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveUser(User{ID: 10, FirstName: "Пётр", LastName: "Иванов"}); err != nil {
		t.Fatal(err)
	}

	u, err := repo.GetUser(10)
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.FirstName != "Пётр" || u.LastName != "Иванов" {
		t.Errorf("GetUser(10) = %+v, want overwritten name", u)
	}

	n, err := repo.CountUsers()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}
}

func TestGetUserAbsent(t *testing.T) {
	repo := newTestRepo(t)

	u, err := repo.GetUser(404)
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Errorf("GetUser(absent) = %+v, want nil", u)
	}
}

func TestSaveResponseResetsCredential(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveResponse(1, 2, DecisionAccepted); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCredentialIssued(1, 2); err != nil {
		t.Fatal(err)
	}

	resp, err := repo.GetResponse(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil || resp.Decision != DecisionAccepted || !resp.CredentialIssued {
		t.Fatalf("GetResponse = %+v, want accepted with credential issued", resp)
	}

	// Re-answering overwrites the decision and invalidates the issued marker.
	if err := repo.SaveResponse(1, 2, DecisionDeclined); err != nil {
		t.Fatal(err)
	}
	resp, err = repo.GetResponse(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil || resp.Decision != DecisionDeclined || resp.CredentialIssued {
		t.Errorf("GetResponse after re-answer = %+v, want declined without credential", resp)
	}
}

func TestMarkCredentialIssuedIdempotent(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveResponse(1, 2, DecisionAccepted); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCredentialIssued(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCredentialIssued(1, 2); err != nil {
		t.Fatal(err)
	}

	resp, err := repo.GetResponse(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil || !resp.CredentialIssued {
		t.Errorf("GetResponse = %+v, want credential issued", resp)
	}
}

func TestDeliveryReceiptUpsert(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveDeliveryReceipt(1, 2, 100); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveDeliveryReceipt(1, 2, 200); err != nil {
		t.Fatal(err)
	}

	rec, err := repo.GetDeliveryReceipt(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.MessageID != 200 {
		t.Errorf("GetDeliveryReceipt = %+v, want message id 200", rec)
	}

	rec, err = repo.GetDeliveryReceipt(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("GetDeliveryReceipt(absent) = %+v, want nil", rec)
	}
}

func TestMarkAttendanceScannedOneWay(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.EnsureAttendance(1, "Meetup"); err != nil {
		t.Fatal(err)
	}

	scanned, err := repo.MarkAttendanceScanned(1, "Meetup", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !scanned {
		t.Fatal("first MarkAttendanceScanned = false, want true")
	}

	a, err := repo.GetAttendance(1, "Meetup")
	if err != nil {
		t.Fatal(err)
	}
	if a == nil || a.Status != AttendanceScanned {
		t.Fatalf("GetAttendance = %+v, want scanned", a)
	}
	firstScan := a.ScannedAt

	scanned, err = repo.MarkAttendanceScanned(1, "Meetup", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if scanned {
		t.Error("second MarkAttendanceScanned = true, want false")
	}

	a, err = repo.GetAttendance(1, "Meetup")
	if err != nil {
		t.Fatal(err)
	}
	if !a.ScannedAt.Equal(firstScan) {
		t.Errorf("scanned_at changed on rejected rescan: %v -> %v", firstScan, a.ScannedAt)
	}
}

func TestMarkAttendanceScannedWithoutRow(t *testing.T) {
	repo := newTestRepo(t)

	// Out-of-band scan: no not-scanned row was ever created.
	scanned, err := repo.MarkAttendanceScanned(7, "Meetup", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !scanned {
		t.Error("MarkAttendanceScanned without prior row = false, want true")
	}
}

func TestEnsureAttendanceKeepsScanned(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.MarkAttendanceScanned(1, "Meetup", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := repo.EnsureAttendance(1, "Meetup"); err != nil {
		t.Fatal(err)
	}

	a, err := repo.GetAttendance(1, "Meetup")
	if err != nil {
		t.Fatal(err)
	}
	if a == nil || a.Status != AttendanceScanned {
		t.Errorf("EnsureAttendance reset a scanned row: %+v", a)
	}
}

func TestInvitationStats(t *testing.T) {
	repo := newTestRepo(t)

	for id := 1; id <= 4; id++ {
		if err := repo.SaveUser(User{ID: id, FirstName: "A", LastName: "B"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.SaveEvent(Event{ID: 1, Name: "Meetup"}); err != nil {
		t.Fatal(err)
	}
	// Three delivered, one failed. Two accepted, one declined.
	for id := 1; id <= 3; id++ {
		if err := repo.SaveDeliveryReceipt(id, 1, 100+id); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.SaveResponse(1, 1, DecisionAccepted); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveResponse(2, 1, DecisionAccepted); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveResponse(3, 1, DecisionDeclined); err != nil {
		t.Fatal(err)
	}

	stats, err := repo.InvitationStats(1)
	if err != nil {
		t.Fatal(err)
	}
	want := InvitationStats{TotalUsers: 4, Delivered: 3, FailedSend: 1, Accepted: 2, NotAccepted: 1}
	if stats.TotalUsers != want.TotalUsers || stats.Delivered != want.Delivered ||
		stats.FailedSend != want.FailedSend || stats.Accepted != want.Accepted ||
		stats.NotAccepted != want.NotAccepted {
		t.Errorf("InvitationStats = %+v, want %+v", stats, want)
	}
}

func TestAttendanceStats(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveEvent(Event{ID: 1, Name: "Meetup"}); err != nil {
		t.Fatal(err)
	}
	for id := 1; id <= 3; id++ {
		if err := repo.SaveResponse(id, 1, DecisionAccepted); err != nil {
			t.Fatal(err)
		}
		if err := repo.EnsureAttendance(id, "Meetup"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.MarkAttendanceScanned(1, "Meetup", time.Now()); err != nil {
		t.Fatal(err)
	}

	stats, err := repo.AttendanceStats(1, "Meetup")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Accepted != 3 || stats.Visited != 1 || stats.NotVisited != 2 {
		t.Errorf("AttendanceStats = %+v, want {Accepted:3 Visited:1 NotVisited:2}", stats)
	}
}

func TestListExportRows(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.SaveUser(User{ID: 1, FirstName: "Иван", LastName: "Петров"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveEvent(Event{ID: 1, Name: "Meetup"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveResponse(1, 1, DecisionAccepted); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.MarkAttendanceScanned(1, "Meetup", time.Now()); err != nil {
		t.Fatal(err)
	}

	rows, err := repo.ListExportRows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("ListExportRows returned %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.User.ID != 1 || row.Event.Name != "Meetup" ||
		row.Response.Decision != DecisionAccepted || !row.Scanned {
		t.Errorf("export row = %+v, want scanned accepted response", row)
	}
}
