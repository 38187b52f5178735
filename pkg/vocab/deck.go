package vocab

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// deckIDPrefix is the GraphQL type prefix inside a decoded deck id.
const deckIDPrefix = "Deck:"

// Deck id validation errors.
var (
	ErrDeckIDEncoding = errors.New("deck id is not valid base64")
	ErrDeckIDFormat   = errors.New("deck id has an unexpected format")
	ErrDeckIDUUID     = errors.New("deck id does not contain a valid UUID")
	ErrDeckIDVersion  = errors.New("deck id UUID is not version 4")
)

// ValidateDeckID checks that id is the base64 encoding of "Deck:<uuid v4>",
// which is how Duocards exposes deck node ids.
func ValidateDeckID(id string) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeckIDEncoding, err)
	}
	if !utf8.Valid(raw) {
		return fmt.Errorf("%w: not UTF-8 after decoding", ErrDeckIDFormat)
	}

	decoded := string(raw)
	if !strings.HasPrefix(decoded, deckIDPrefix) {
		return fmt.Errorf("%w: missing %q prefix", ErrDeckIDFormat, deckIDPrefix)
	}

	parsed, err := uuid.Parse(strings.TrimPrefix(decoded, deckIDPrefix))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeckIDUUID, err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("%w: got version %d", ErrDeckIDVersion, parsed.Version())
	}
	return nil
}

// EncodeDeckID builds a deck id from a deck UUID.
func EncodeDeckID(id uuid.UUID) string {
	return base64.StdEncoding.EncodeToString([]byte(deckIDPrefix + id.String()))
}
