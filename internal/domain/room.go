package domain

import "unicode/utf8"

// MaxRoomIDLen is the number of characters kept from a requested room id.
const MaxRoomIDLen = 8

type RoomID string

type Role string

const (
	RolePhone  Role = "phone"
	RoleViewer Role = "viewer"
	RoleOther  Role = "other"
)

type Room struct {
	ID RoomID
}

// NormalizeRoomID truncates raw to MaxRoomIDLen characters.
func NormalizeRoomID(raw string) RoomID {
	if utf8.RuneCountInString(raw) <= MaxRoomIDLen {
		return RoomID(raw)
	}
	runes := []rune(raw)
	return RoomID(string(runes[:MaxRoomIDLen]))
}

// ParseRole keeps any declared role and falls back to RoleOther when empty.
// Cardinality of roles inside a room is never enforced.
func ParseRole(raw string) Role {
	if raw == "" {
		return RoleOther
	}
	return Role(raw)
}
