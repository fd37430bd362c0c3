package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ComposeJID maps a raw destination identifier onto a typed JID. Group
// identifiers are recognized by their dash or length, everything else is
// treated as a direct-message address.
func ComposeJID(id string) types.JID {
	if strings.ContainsRune(id, '@') {
		if parsed, err := types.ParseJID(id); err == nil && parsed.User != "" {
			return parsed
		}
	}

	id = DecomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

// DecomposeJID strips the server suffix and leading plus sign from an
// identifier, leaving the bare user or group part.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		buffers := strings.Split(id, "@")
		id = buffers[0]
	}

	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}

	return strings.TrimSpace(id)
}
