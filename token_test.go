package main

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	tests := []struct {
		eventID int
		userID  int
	}{
		{0, 0},
		{1, 2},
		{5, 42},
		{999, 123456789},
	}

	for _, tt := range tests {
		token := EncodeToken(tt.eventID, tt.userID)
		eventID, userID, err := DecodeToken(token)
		if err != nil {
			t.Errorf("DecodeToken(%q) unexpected error: %v", token, err)
			continue
		}
		if eventID != tt.eventID || userID != tt.userID {
			t.Errorf("DecodeToken(%q) = (%d, %d), want (%d, %d)",
				token, eventID, userID, tt.eventID, tt.userID)
		}
	}
}

func TestEncodeTokenFormat(t *testing.T) {
	if got := EncodeToken(5, 42); got != "5U42" {
		t.Errorf("EncodeToken(5, 42) = %q, want %q", got, "5U42")
	}
}

func TestDecodeTokenMalformed(t *testing.T) {
	tests := []string{
		"",
		"U",
		"5U",
		"U42",
		"abcU123",
		"1U2U3",
		"1-2",
		"542",
		"-1U2",
		"1U-2",
		"1.5U2",
		" 1U2",
	}

	for _, token := range tests {
		t.Run(token, func(t *testing.T) {
			_, _, err := DecodeToken(token)
			if err != ErrMalformedToken {
				t.Errorf("DecodeToken(%q) error = %v, want ErrMalformedToken", token, err)
			}
		})
	}
}
