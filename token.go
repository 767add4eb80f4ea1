package main

import (
	"errors"
	"strconv"
	"strings"
)

// tokenSeparator splits the event id from the user id inside a credential.
// The format is a wire-level contract: QR codes already printed and handed
// out decode against it, so it must never change.
const tokenSeparator = "U"

// ErrMalformedToken is returned when a scanned credential does not parse
// as "<event_id>U<user_id>".
var ErrMalformedToken = errors.New("malformed credential token")

// EncodeToken builds the credential string embedded in a QR code.
func EncodeToken(eventID, userID int) string {
	return strconv.Itoa(eventID) + tokenSeparator + strconv.Itoa(userID)
}

// DecodeToken parses a credential string back into its event and user ids.
// Exactly one separator and two non-negative integer segments are accepted.
func DecodeToken(token string) (eventID, userID int, err error) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 {
		return 0, 0, ErrMalformedToken
	}
	eventID, err = parseTokenID(parts[0])
	if err != nil {
		return 0, 0, ErrMalformedToken
	}
	userID, err = parseTokenID(parts[1])
	if err != nil {
		return 0, 0, ErrMalformedToken
	}
	return eventID, userID, nil
}

func parseTokenID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, ErrMalformedToken
	}
	return id, nil
}
