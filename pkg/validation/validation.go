package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
)

// MaxMessageGraphemes matches the WhatsApp client-side text limit.
const MaxMessageGraphemes = 65536

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateSessionID ensures a usable path-safe session identifier.
func ValidateSessionID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("session id is required")
	}
	if strings.ContainsAny(trimmed, " /\\") {
		return errors.New("session id must not contain spaces or slashes")
	}
	return nil
}

// ValidateMessageText bounds text length by grapheme clusters, not bytes,
// so multi-codepoint emoji count as one character.
func ValidateMessageText(text string) error {
	if text == "" {
		return errors.New("message text cannot be empty")
	}
	if uniseg.GraphemeClusterCount(text) > MaxMessageGraphemes {
		return errors.New("message text exceeds maximum length")
	}
	return nil
}

// ValidateURL ensures a non-empty valid URL when provided.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("url must be valid")
	}
	return nil
}
