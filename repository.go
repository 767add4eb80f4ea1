package main

import (
	"database/sql"
	"time"
)

// Repository defines the interface for database operations
type Repository interface {
	CreateTables() error

	SaveUser(u User) error
	GetUser(id int) (*User, error)
	UpdateUserName(id int, firstName, lastName string) error
	ListUsers() ([]User, error)
	CountUsers() (int, error)

	NextEventID() (int, error)
	SaveEvent(ev Event) error
	GetEvent(id int) (*Event, error)
	GetEventByName(name string) (*Event, error)
	ListEvents() ([]Event, error)

	SaveResponse(userID, eventID int, decision Decision) error
	MarkCredentialIssued(userID, eventID int) error
	GetResponse(userID, eventID int) (*Response, error)

	SaveDeliveryReceipt(userID, eventID, messageID int) error
	GetDeliveryReceipt(userID, eventID int) (*DeliveryReceipt, error)

	EnsureAttendance(userID int, eventName string) error
	GetAttendance(userID int, eventName string) (*Attendance, error)
	MarkAttendanceScanned(userID int, eventName string, at time.Time) (bool, error)

	InvitationStats(eventID int) (InvitationStats, error)
	AttendanceStats(eventID int, eventName string) (AttendanceStats, error)
	ListExportRows() ([]ExportRow, error)
}

// SQLiteRepository implements the Repository interface
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLiteRepository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateTables creates the tables for users, events, responses,
// invitation messages and attendance
func (r *SQLiteRepository) CreateTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			invitation_text TEXT NOT NULL DEFAULT '',
			photo_ref TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS responses (
			user_id INTEGER NOT NULL,
			event_id INTEGER NOT NULL,
			decision TEXT NOT NULL,
			qr_sent INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS invitation_messages (
			user_id INTEGER NOT NULL,
			event_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			PRIMARY KEY (user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS attendance (
			user_id INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			scanned_at DATETIME,
			PRIMARY KEY (user_id, event_name)
		);`,
	}
	for _, q := range tables {
		if _, err := r.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveUser inserts a user or overwrites the name fields of an existing one
func (r *SQLiteRepository) SaveUser(u User) error {
	stmt, err := r.db.Prepare(`INSERT INTO users (telegram_id, first_name, last_name) VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(u.ID, u.FirstName, u.LastName)
	return err
}

// GetUser returns the user with the given telegram id, or nil when absent
func (r *SQLiteRepository) GetUser(id int) (*User, error) {
	row := r.db.QueryRow("SELECT telegram_id, first_name, last_name FROM users WHERE telegram_id = ?", id)
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserName overwrites the display name of an existing user
func (r *SQLiteRepository) UpdateUserName(id int, firstName, lastName string) error {
	stmt, err := r.db.Prepare("UPDATE users SET first_name = ?, last_name = ? WHERE telegram_id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(firstName, lastName, id)
	return err
}

// ListUsers returns all registered users
func (r *SQLiteRepository) ListUsers() ([]User, error) {
	rows, err := r.db.Query("SELECT telegram_id, first_name, last_name FROM users ORDER BY telegram_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of registered users
func (r *SQLiteRepository) CountUsers() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// NextEventID returns max(event_id)+1, starting at 1 for an empty table.
// Gaps left by deleted rows are tolerated, ids only grow.
func (r *SQLiteRepository) NextEventID() (int, error) {
	var next int
	err := r.db.QueryRow("SELECT COALESCE(MAX(event_id), 0) + 1 FROM events").Scan(&next)
	return next, err
}

// SaveEvent inserts a new event with an explicit id
func (r *SQLiteRepository) SaveEvent(ev Event) error {
	stmt, err := r.db.Prepare("INSERT INTO events (event_id, name, invitation_text, photo_ref) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(ev.ID, ev.Name, ev.InvitationText, ev.PhotoRef)
	return err
}

// GetEvent returns the event with the given id, or nil when absent
func (r *SQLiteRepository) GetEvent(id int) (*Event, error) {
	row := r.db.QueryRow("SELECT event_id, name, invitation_text, photo_ref FROM events WHERE event_id = ?", id)
	return scanEvent(row)
}

// GetEventByName returns the event with the given exact name, or nil when absent
func (r *SQLiteRepository) GetEventByName(name string) (*Event, error) {
	row := r.db.QueryRow("SELECT event_id, name, invitation_text, photo_ref FROM events WHERE name = ?", name)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.Name, &ev.InvitationText, &ev.PhotoRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns all events ordered by id
func (r *SQLiteRepository) ListEvents() ([]Event, error) {
	rows, err := r.db.Query("SELECT event_id, name, invitation_text, photo_ref FROM events ORDER BY event_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.InvitationText, &ev.PhotoRef); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveResponse upserts a recipient's decision. A changed decision always
// resets qr_sent: the previously issued credential marker no longer matches
// the recorded answer.
func (r *SQLiteRepository) SaveResponse(userID, eventID int, decision Decision) error {
	stmt, err := r.db.Prepare(`INSERT INTO responses (user_id, event_id, decision, qr_sent) VALUES (?, ?, ?, 0)
		ON CONFLICT(user_id, event_id) DO UPDATE SET decision = excluded.decision, qr_sent = 0`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(userID, eventID, string(decision))
	return err
}

// MarkCredentialIssued records that the QR credential was delivered. Idempotent.
func (r *SQLiteRepository) MarkCredentialIssued(userID, eventID int) error {
	stmt, err := r.db.Prepare("UPDATE responses SET qr_sent = 1 WHERE user_id = ? AND event_id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(userID, eventID)
	return err
}

// GetResponse returns the recorded decision for a (user, event) pair, or nil when absent
func (r *SQLiteRepository) GetResponse(userID, eventID int) (*Response, error) {
	row := r.db.QueryRow("SELECT user_id, event_id, decision, qr_sent FROM responses WHERE user_id = ? AND event_id = ?",
		userID, eventID)
	var resp Response
	var decision string
	var qrSent int
	err := row.Scan(&resp.UserID, &resp.EventID, &decision, &qrSent)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	resp.Decision = Decision(decision)
	resp.CredentialIssued = qrSent == 1
	return &resp, nil
}

// SaveDeliveryReceipt upserts the message id of a delivered invitation
func (r *SQLiteRepository) SaveDeliveryReceipt(userID, eventID, messageID int) error {
	stmt, err := r.db.Prepare(`INSERT INTO invitation_messages (user_id, event_id, message_id) VALUES (?, ?, ?)
		ON CONFLICT(user_id, event_id) DO UPDATE SET message_id = excluded.message_id`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(userID, eventID, messageID)
	return err
}

// GetDeliveryReceipt returns the stored invitation message id, or nil when absent
func (r *SQLiteRepository) GetDeliveryReceipt(userID, eventID int) (*DeliveryReceipt, error) {
	row := r.db.QueryRow("SELECT user_id, event_id, message_id FROM invitation_messages WHERE user_id = ? AND event_id = ?",
		userID, eventID)
	var rec DeliveryReceipt
	err := row.Scan(&rec.UserID, &rec.EventID, &rec.MessageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// EnsureAttendance creates a not-scanned attendance row if none exists.
// An existing row, scanned or not, is left untouched.
func (r *SQLiteRepository) EnsureAttendance(userID int, eventName string) error {
	stmt, err := r.db.Prepare("INSERT OR IGNORE INTO attendance (user_id, event_name, status) VALUES (?, ?, 0)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(userID, eventName)
	return err
}

// GetAttendance returns the attendance row for a (user, event name) pair, or nil when absent
func (r *SQLiteRepository) GetAttendance(userID int, eventName string) (*Attendance, error) {
	row := r.db.QueryRow("SELECT user_id, event_name, status, scanned_at FROM attendance WHERE user_id = ? AND event_name = ?",
		userID, eventName)
	var a Attendance
	var scannedAt sql.NullString
	err := row.Scan(&a.UserID, &a.EventName, &a.Status, &scannedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if scannedAt.Valid {
		a.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt.String)
	}
	return &a, nil
}

// MarkAttendanceScanned performs the one-way not_scanned -> scanned transition.
// The upsert flips status only while it is still 0, so of two concurrent scans
// of the same credential exactly one sees true; the other gets false with a
// nil error, meaning the credential was already redeemed.
func (r *SQLiteRepository) MarkAttendanceScanned(userID int, eventName string, at time.Time) (bool, error) {
	stmt, err := r.db.Prepare(`INSERT INTO attendance (user_id, event_name, status, scanned_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, event_name) DO UPDATE SET status = 1, scanned_at = excluded.scanned_at
		WHERE attendance.status = 0`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()
	res, err := stmt.Exec(userID, eventName, at.Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// InvitationStats aggregates delivery and decision counts for one event
func (r *SQLiteRepository) InvitationStats(eventID int) (InvitationStats, error) {
	var stats InvitationStats
	if err := r.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&stats.TotalUsers); err != nil {
		return stats, err
	}
	err := r.db.QueryRow("SELECT COUNT(DISTINCT user_id) FROM invitation_messages WHERE event_id = ?", eventID).
		Scan(&stats.Delivered)
	if err != nil {
		return stats, err
	}
	err = r.db.QueryRow("SELECT COUNT(*) FROM responses WHERE event_id = ? AND decision = ?", eventID, string(DecisionAccepted)).
		Scan(&stats.Accepted)
	if err != nil {
		return stats, err
	}
	stats.FailedSend = stats.TotalUsers - stats.Delivered
	stats.NotAccepted = stats.Delivered - stats.Accepted
	if stats.Delivered > 0 {
		stats.AcceptPercent = float64(stats.Accepted) / float64(stats.Delivered) * 100
	}
	return stats, nil
}

// AttendanceStats aggregates redemption counts for one event
func (r *SQLiteRepository) AttendanceStats(eventID int, eventName string) (AttendanceStats, error) {
	var stats AttendanceStats
	err := r.db.QueryRow("SELECT COUNT(*) FROM attendance WHERE event_name = ? AND status = 1", eventName).
		Scan(&stats.Visited)
	if err != nil {
		return stats, err
	}
	err = r.db.QueryRow("SELECT COUNT(*) FROM responses WHERE event_id = ? AND decision = ?", eventID, string(DecisionAccepted)).
		Scan(&stats.Accepted)
	if err != nil {
		return stats, err
	}
	stats.NotVisited = stats.Accepted - stats.Visited
	if stats.NotVisited < 0 {
		stats.NotVisited = 0
	}
	return stats, nil
}

// ListExportRows retrieves all responses joined with user, event and attendance data
func (r *SQLiteRepository) ListExportRows() ([]ExportRow, error) {
	query := `
        SELECT u.telegram_id, u.first_name, u.last_name,
               e.event_id, e.name,
               r.decision, r.qr_sent,
               COALESCE(a.status, 0), a.scanned_at
        FROM responses r
        JOIN users u ON u.telegram_id = r.user_id
        JOIN events e ON e.event_id = r.event_id
        LEFT JOIN attendance a ON a.user_id = r.user_id AND a.event_name = e.name
        ORDER BY e.event_id DESC, u.last_name ASC
    `

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var export []ExportRow
	for rows.Next() {
		var row ExportRow
		var decision string
		var qrSent, status int
		var scannedAt sql.NullString

		err := rows.Scan(
			&row.User.ID,
			&row.User.FirstName,
			&row.User.LastName,
			&row.Event.ID,
			&row.Event.Name,
			&decision,
			&qrSent,
			&status,
			&scannedAt,
		)
		if err != nil {
			return nil, err
		}

		row.Response = Response{
			UserID:           row.User.ID,
			EventID:          row.Event.ID,
			Decision:         Decision(decision),
			CredentialIssued: qrSent == 1,
		}
		row.Scanned = status == 1
		if scannedAt.Valid {
			row.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt.String)
		}

		export = append(export, row)
	}

	return export, rows.Err()
}
