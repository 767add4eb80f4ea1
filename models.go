package main

import "time"

// Decision is a recipient's answer to an invitation.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// Attendance scan status values.
const (
	AttendanceNotScanned = 0
	AttendanceScanned    = 1
)

// User represents a registered invitation recipient.
type User struct {
	ID        int    // ID is the user's Telegram account id.
	FirstName string // FirstName is the user's given name.
	LastName  string // LastName is the user's family name.
}

// FullName returns the user's display name.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Event represents an invitation campaign.
type Event struct {
	ID             int    // ID is assigned as max(existing)+1 when the campaign starts.
	Name           string // Name is the event title.
	InvitationText string // InvitationText is the invitation body sent to recipients.
	PhotoRef       string // PhotoRef is the transport media reference, empty when no photo.
}

// Response records a recipient's decision for one event.
type Response struct {
	UserID           int
	EventID          int
	Decision         Decision
	CredentialIssued bool // CredentialIssued is true only after the QR was delivered.
}

// DeliveryReceipt records the transport message id of a delivered invitation,
// so the message can later be edited in place to reflect the decision.
type DeliveryReceipt struct {
	UserID    int
	EventID   int
	MessageID int
}

// Attendance records whether a credential was redeemed at the event.
// Keyed by event name rather than id: the decoded QR carries the event id,
// but attendance is looked up and aggregated by name without a join.
type Attendance struct {
	UserID    int
	EventName string
	Status    int
	ScannedAt time.Time
}

// InvitationStats aggregates delivery and decision counts for one event.
type InvitationStats struct {
	TotalUsers    int
	Delivered     int
	FailedSend    int
	Accepted      int
	NotAccepted   int
	AcceptPercent float64
}

// AttendanceStats aggregates redemption counts for one event.
type AttendanceStats struct {
	Accepted   int
	Visited    int
	NotVisited int
}

// ExportRow is one line of the admin CSV export: a response joined with
// its user, event and attendance state.
type ExportRow struct {
	User      User
	Event     Event
	Response  Response
	Scanned   bool
	ScannedAt time.Time
}
