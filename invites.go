package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Errors surfaced by the orchestrator when a decision references missing entities.
var (
	ErrUserNotRegistered = errors.New("user is not registered")
	ErrEventNotFound     = errors.New("event not found")
)

// InvitationPayload is what the transport delivers to one recipient: the
// invitation text, an optional photo, and the event id the accept/decline
// affordance must reference.
type InvitationPayload struct {
	EventID int
	Text    string
	Photo   []byte
}

// Transport abstracts the messaging collaborator. Every call can fail;
// delivery is never assumed.
type Transport interface {
	SendInvitation(userID int, p InvitationPayload) (messageID int, err error)
	EditInvitation(userID, messageID int, text string, hasPhoto bool) error
	SendMessage(userID int, text string) error
	SendCredential(userID int, png []byte, caption string) error
	FetchMedia(ref string) ([]byte, error)
}

// EventDraft holds the fields collected by the admin dialog before an event exists.
type EventDraft struct {
	Name           string
	InvitationText string
	PhotoRef       string
}

// DecisionOutcome reports what happened when a recipient answered.
type DecisionOutcome struct {
	User            User
	Event           Event
	Decision        Decision
	AlreadyAnswered bool // the prior answer was echoed, nothing re-issued
	CredentialSent  bool
}

// Orchestrator coordinates invitation campaigns: event creation, fan-out,
// decision handling and credential issuance.
type Orchestrator struct {
	repo       Repository
	transport  Transport
	dispatcher *Dispatcher
	media      *mediaCache
	log        *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo Repository, transport Transport, dispatcher *Dispatcher, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		transport:  transport,
		dispatcher: dispatcher,
		media:      newMediaCache(transport),
		log:        log,
	}
}

// StartCampaign allocates the next event id, persists the event and fans the
// invitation out to every registered user, storing a delivery receipt per
// successful send. The event photo is fetched once and reused for all
// recipients; a fetch failure degrades to a text-only invitation.
func (o *Orchestrator) StartCampaign(ctx context.Context, draft EventDraft) (*Event, BroadcastResult, error) {
	id, err := o.repo.NextEventID()
	if err != nil {
		return nil, BroadcastResult{}, err
	}
	ev := Event{ID: id, Name: draft.Name, InvitationText: draft.InvitationText, PhotoRef: draft.PhotoRef}
	if err := o.repo.SaveEvent(ev); err != nil {
		return nil, BroadcastResult{}, err
	}

	var photo []byte
	if ev.PhotoRef != "" {
		photo, err = o.media.fetch(ev.PhotoRef)
		if err != nil {
			o.log.Warn("invite: media fetch failed, sending without photo",
				slog.String("ref", ev.PhotoRef), errAttr(err))
			photo = nil
		}
	}

	users, err := o.repo.ListUsers()
	if err != nil {
		return nil, BroadcastResult{}, err
	}

	o.log.Info("invite: campaign started",
		slog.Int("event_id", ev.ID),
		slog.String("event", ev.Name),
		slog.Int("recipients", len(users)))

	result := o.dispatcher.Broadcast(ctx, users, func(ctx context.Context, u User) error {
		payload := InvitationPayload{
			EventID: ev.ID,
			Text:    formatInvitation(u, ev),
			Photo:   photo,
		}
		msgID, err := o.transport.SendInvitation(u.ID, payload)
		if err != nil {
			return err
		}
		return o.repo.SaveDeliveryReceipt(u.ID, ev.ID, msgID)
	})

	return &ev, result, nil
}

// Announce fans a plain announcement out to every registered user.
func (o *Orchestrator) Announce(ctx context.Context, text string) (BroadcastResult, int, error) {
	users, err := o.repo.ListUsers()
	if err != nil {
		return BroadcastResult{}, 0, err
	}
	msg := formatAnnouncement(text)
	result := o.dispatcher.Broadcast(ctx, users, func(ctx context.Context, u User) error {
		return o.transport.SendMessage(u.ID, msg)
	})
	return result, len(users), nil
}

// HandleDecision records a recipient's answer. A repeated click echoes the
// prior decision without issuing a second credential. On first acceptance a
// credential is generated, delivered, marked issued, and a not-scanned
// attendance row is created.
func (o *Orchestrator) HandleDecision(userID, eventID int, decision Decision) (*DecisionOutcome, error) {
	user, err := o.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotRegistered
	}
	event, err := o.repo.GetEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	prior, err := o.repo.GetResponse(userID, eventID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		o.updateInvitationMessage(*user, *event, prior.Decision, prior.CredentialIssued)
		return &DecisionOutcome{
			User:            *user,
			Event:           *event,
			Decision:        prior.Decision,
			AlreadyAnswered: true,
			CredentialSent:  prior.CredentialIssued,
		}, nil
	}

	if err := o.repo.SaveResponse(userID, eventID, decision); err != nil {
		return nil, err
	}
	outcome := &DecisionOutcome{User: *user, Event: *event, Decision: decision}

	if decision != DecisionAccepted {
		o.log.Info("invite: declined",
			slog.Int("user_id", userID), slog.Int("event_id", eventID))
		o.updateInvitationMessage(*user, *event, decision, false)
		return outcome, nil
	}

	token := EncodeToken(eventID, userID)
	png, err := RenderCredentialQR(token)
	if err != nil {
		return nil, err
	}

	o.updateInvitationMessage(*user, *event, decision, true)

	if err := o.transport.SendCredential(userID, png, formatCredentialCaption(*event, token)); err != nil {
		return nil, err
	}
	if err := o.repo.MarkCredentialIssued(userID, eventID); err != nil {
		return nil, err
	}
	if err := o.repo.EnsureAttendance(userID, event.Name); err != nil {
		return nil, err
	}

	o.log.Info("invite: accepted, credential issued",
		slog.Int("user_id", userID), slog.Int("event_id", eventID))

	outcome.CredentialSent = true
	return outcome, nil
}

// updateInvitationMessage rewrites the stored invitation message to reflect
// the recorded decision. Best effort: an edit failure falls back to a fresh
// message, a missing receipt is skipped.
func (o *Orchestrator) updateInvitationMessage(user User, event Event, decision Decision, qrSent bool) {
	rec, err := o.repo.GetDeliveryReceipt(user.ID, event.ID)
	if err != nil {
		o.log.Warn("invite: receipt lookup failed", slog.Int("user_id", user.ID), errAttr(err))
		return
	}
	if rec == nil {
		return
	}
	text := formatInvitationAnswered(user, event, decision, qrSent)
	if err := o.transport.EditInvitation(user.ID, rec.MessageID, text, event.PhotoRef != ""); err != nil {
		o.log.Warn("invite: message edit failed", slog.Int("user_id", user.ID), errAttr(err))
		_ = o.transport.SendMessage(user.ID, text)
	}
}

// mediaCache keeps immutable attachment bytes keyed by media reference so a
// campaign fetches each photo once, not once per recipient.
type mediaCache struct {
	transport Transport
	mu        sync.Mutex
	items     map[string][]byte
}

func newMediaCache(t Transport) *mediaCache {
	return &mediaCache{transport: t, items: make(map[string][]byte)}
}

func (c *mediaCache) fetch(ref string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.items[ref]; ok {
		return data, nil
	}
	data, err := c.transport.FetchMedia(ref)
	if err != nil {
		return nil, err
	}
	c.items[ref] = data
	return data, nil
}
