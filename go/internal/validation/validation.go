package validation

import (
	"crypto/rand"
	"errors"
	"math/big"
	"unicode/utf8"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

const (
	// MaxNameLength is the longest display name accepted, in characters.
	MaxNameLength = 50

	// RoomCodeLength is the exact length of a room code.
	RoomCodeLength = 6

	// roomCodeChars excludes characters that are easy to misread (0/O, 1/I).
	roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	ErrInvalidVote     = errors.New("invalid vote value")
	ErrInvalidName     = errors.New("invalid display name")
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrMissingUserID   = errors.New("user id is required")
)

// estimateSequence is the numeric part of the card scale. 0 is deliberately
// absent: a zero estimate is not a valid vote.
var estimateSequence = []float64{1, 2, 3, 5, 8, 13, 21}

var specialTokens = []string{models.TokenUnsure, models.TokenCoffee}

// Scale returns the canonical card set in display order.
func Scale() []models.Value {
	scale := make([]models.Value, 0, len(estimateSequence)+len(specialTokens))
	for _, n := range estimateSequence {
		scale = append(scale, models.NumberValue(n))
	}
	for _, t := range specialTokens {
		scale = append(scale, models.TokenValue(t))
	}
	return scale
}

// IsValidVote reports whether v is null, a special token or a member of the
// estimate sequence.
func IsValidVote(v models.Value) bool {
	switch v.Kind() {
	case models.ValueKindNull:
		return true
	case models.ValueKindNumber:
		n, _ := v.Number()
		for _, allowed := range estimateSequence {
			if n == allowed {
				return true
			}
		}
	case models.ValueKindToken:
		t, _ := v.Token()
		for _, allowed := range specialTokens {
			if t == allowed {
				return true
			}
		}
	}
	return false
}

// IsValidName reports whether name is non-empty and at most MaxNameLength characters.
func IsValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n > 0 && n <= MaxNameLength
}

// IsValidRoomCode reports whether code is exactly six uppercase alphanumeric characters.
func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// ValidateVote returns ErrInvalidVote for values IsValidVote rejects.
func ValidateVote(v models.Value) error {
	if !IsValidVote(v) {
		return ErrInvalidVote
	}
	return nil
}

// ValidateParticipant checks the identity half of a vote.
func ValidateParticipant(userID, userName string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if !IsValidName(userName) {
		return ErrInvalidName
	}
	return nil
}

// ValidateRoomCode returns ErrInvalidRoomCode for codes IsValidRoomCode rejects.
func ValidateRoomCode(code string) error {
	if !IsValidRoomCode(code) {
		return ErrInvalidRoomCode
	}
	return nil
}

// GenerateRoomCode returns a random room code drawn from an unambiguous alphabet.
func GenerateRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	max := big.NewInt(int64(len(roomCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = roomCodeChars[n.Int64()]
	}
	return string(code), nil
}
