// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxClientIDLen = 64

var (
	ErrClientIDEmpty   = errors.New("client id empty")
	ErrClientIDTooLong = errors.New("client id too long")
)

// ClientID is the self-declared identifier a client registers with.
type ClientID string

// NewClientID is used when the caller did not pick an identifier.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// ParseClientID trims and validates a raw identifier from the wire.
func ParseClientID(raw string) (ClientID, error) {
	return ParseClientIDLimit(raw, MaxClientIDLen)
}

func ParseClientIDLimit(raw string, maxLen int) (ClientID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrClientIDEmpty
	}
	if maxLen <= 0 || maxLen > MaxClientIDLen {
		maxLen = MaxClientIDLen
	}
	if len(id) > maxLen {
		return "", ErrClientIDTooLong
	}
	return ClientID(id), nil
}
