package main

import (
	"strings"
	"sync"
	"time"
)

// DialogState represents the current step of a chat's multi-turn form
type DialogState int

const (
	NoDialog DialogState = iota
	// user registration
	WaitingForFirstName
	WaitingForLastName
	// admin: invitation campaign creation
	WaitingForEventName
	WaitingForEventPhoto
	WaitingForInvitationText
	// admin: other flows
	WaitingForAnnouncement
	WaitingForStatsEvent
	WaitingForVisitedEvent
	WaitingForUserEdit
	WaitingForScanPhoto
)

// Session stores the dialog state and partial form fields for one chat
type Session struct {
	State    DialogState
	Fields   map[string]string // partial form data collected so far
	Deadline time.Time
}

// DialogManager keeps per-chat session records. Sessions expire after a TTL
// so an abandoned form never wedges the chat.
type DialogManager struct {
	sessions map[int64]*Session
	ttl      time.Duration
	mu       sync.RWMutex
}

// NewDialogManager creates a new DialogManager
func NewDialogManager(ttl time.Duration) *DialogManager {
	return &DialogManager{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
	}
}

// SetState moves a chat to the given dialog step, preserving collected fields
func (dm *DialogManager) SetState(chatID int64, state DialogState) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	s, exists := dm.sessions[chatID]
	if !exists || time.Now().After(s.Deadline) {
		s = &Session{Fields: make(map[string]string)}
		dm.sessions[chatID] = s
	}
	s.State = state
	s.Deadline = time.Now().Add(dm.ttl)
}

// GetState returns the chat's current dialog step
func (dm *DialogManager) GetState(chatID int64) DialogState {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if s, exists := dm.sessions[chatID]; exists && time.Now().Before(s.Deadline) {
		return s.State
	}
	return NoDialog
}

// SetField stores one partial form value for the chat
func (dm *DialogManager) SetField(chatID int64, key, value string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if s, exists := dm.sessions[chatID]; exists {
		s.Fields[key] = value
	}
}

// GetField returns one partial form value for the chat
func (dm *DialogManager) GetField(chatID int64, key string) string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if s, exists := dm.sessions[chatID]; exists {
		return s.Fields[key]
	}
	return ""
}

// Cancel removes the chat's session
func (dm *DialogManager) Cancel(chatID int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	delete(dm.sessions, chatID)
}

// ValidateName rejects strings unusable as a person's name: too short,
// digits only, commands, or containing special characters.
func ValidateName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < 2 {
		return false
	}
	if strings.HasPrefix(trimmed, "/") {
		return false
	}
	digitsOnly := true
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			digitsOnly = false
			break
		}
	}
	if digitsOnly {
		return false
	}
	if strings.ContainsAny(trimmed, `!@#$%^&*()_+=[]{}|;:,.<>?~`+"`"+`"`) {
		return false
	}
	return true
}
