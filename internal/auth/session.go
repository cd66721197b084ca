package auth

import (
	"strconv"
)

// StorageKey is the key-value slot holding the serialized session.
const StorageKey = "auth.session"

// Session identifies the signed-in user.
type Session struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Valid reports whether s carries a token.
func (s Session) Valid() bool {
	return s.Token != ""
}

// IsSelf reports whether sender names this user. The server echoes either the
// numeric id or the username depending on the path, so both are accepted.
func (s Session) IsSelf(sender string) bool {
	if sender == "" {
		return false
	}
	if s.UserID != 0 && sender == strconv.FormatInt(s.UserID, 10) {
		return true
	}
	return s.Username != "" && sender == s.Username
}
