package main

import (
	"log/slog"
	"time"
)

// VerifyStatus classifies the outcome of a credential verification.
type VerifyStatus int

const (
	// VerifyOK: the credential was valid and attendance is now recorded.
	VerifyOK VerifyStatus = iota
	// VerifyInvalidFormat: the scanned string is not a credential token.
	VerifyInvalidFormat
	// VerifyUnknownUser: the token references a user that is not registered.
	VerifyUnknownUser
	// VerifyUnknownEvent: the token references an event that does not exist.
	VerifyUnknownEvent
	// VerifyAlreadyScanned: the credential was redeemed before. Terminal
	// outcome, not an error: the scan is reported but never reprocessed.
	VerifyAlreadyScanned
)

// VerifyResult carries the verification outcome plus the entities resolved
// along the way, for the operator-facing report.
type VerifyResult struct {
	Status VerifyStatus
	Token  string
	User   *User
	Event  *Event
}

// Verifier performs the one-way accepted -> attended transition for a
// decoded credential.
type Verifier struct {
	repo Repository
	log  *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(repo Repository, log *slog.Logger) *Verifier {
	return &Verifier{repo: repo, log: log}
}

// Verify validates a scanned credential token and marks attendance. The
// scanned transition is a single atomic check-and-set in the store, so two
// near-simultaneous scans of the same credential cannot both succeed.
// Store failures are returned; the mutation did not happen.
func (v *Verifier) Verify(token string) (VerifyResult, error) {
	result := VerifyResult{Token: token}

	eventID, userID, err := DecodeToken(token)
	if err != nil {
		result.Status = VerifyInvalidFormat
		return result, nil
	}

	user, err := v.repo.GetUser(userID)
	if err != nil {
		return result, err
	}
	if user == nil {
		result.Status = VerifyUnknownUser
		return result, nil
	}
	result.User = user

	event, err := v.repo.GetEvent(eventID)
	if err != nil {
		return result, err
	}
	if event == nil {
		result.Status = VerifyUnknownEvent
		return result, nil
	}
	result.Event = event

	scanned, err := v.repo.MarkAttendanceScanned(userID, event.Name, time.Now())
	if err != nil {
		return result, err
	}
	if !scanned {
		result.Status = VerifyAlreadyScanned
		return result, nil
	}

	// An out-of-band scan may arrive without a recorded decision, e.g. a
	// credential issued before a data migration. Reconcile so responses
	// and attendance never contradict each other.
	resp, err := v.repo.GetResponse(userID, eventID)
	if err != nil {
		return result, err
	}
	if resp == nil {
		if err := v.repo.SaveResponse(userID, eventID, DecisionAccepted); err != nil {
			return result, err
		}
		if err := v.repo.MarkCredentialIssued(userID, eventID); err != nil {
			return result, err
		}
	}

	v.log.Info("attendance verified",
		slog.Int("user_id", userID),
		slog.Int("event_id", eventID),
		slog.String("event", event.Name))

	result.Status = VerifyOK
	return result, nil
}
