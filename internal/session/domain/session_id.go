package domain

import (
	"encoding/base64"
	"regexp"

	"github.com/google/uuid"
)

const (
	minSessionIDLength = 16
	maxSessionIDLength = 128
)

var (
	randomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)
	base64Pattern   = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

// SessionID identifies a session. The zero value is not a valid id.
type SessionID struct {
	value string
}

// NewSessionID validates s as a UUID v4, a url-safe random string, or standard base64.
func NewSessionID(s string) (SessionID, error) {
	if s == "" {
		return SessionID{}, ErrSessionIDRequired
	}
	if len(s) < minSessionIDLength || len(s) > maxSessionIDLength {
		return SessionID{}, ErrInvalidSessionID
	}
	if !isUUIDv4(s) && !randomIDPattern.MatchString(s) && !isBase64(s) {
		return SessionID{}, ErrInvalidSessionID
	}
	return SessionID{value: s}, nil
}

// GenerateSessionID returns a fresh UUID v4 id.
func GenerateSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

// MustSessionID is NewSessionID for ids already validated, e.g. read back from storage.
func MustSessionID(s string) SessionID {
	id, err := NewSessionID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id SessionID) String() string { return id.value }

// IsZero reports whether id was never assigned.
func (id SessionID) IsZero() bool { return id.value == "" }

func (id SessionID) Equals(other SessionID) bool { return id.value == other.value }

func isUUIDv4(s string) bool {
	u, err := uuid.Parse(s)
	return err == nil && u.Version() == 4
}

func isBase64(s string) bool {
	if !base64Pattern.MatchString(s) {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
