package chat

import (
	"strings"
	"unicode/utf8"
)

const (
	minLoginLength   = 3
	maxLoginLength   = 20
	maxPasswordBytes = 72 // bcrypt ignores anything longer
	maxMessageLength = 500
	maxTitleLength   = 64
)

// validateLogin checks length (3-20 characters) and character set
// (alphanumeric and underscore). Logins are also NATS subject tokens, so
// dots and wildcards must never get through.
func validateLogin(login string) bool {
	if len(login) < minLoginLength || len(login) > maxLoginLength {
		return false
	}
	for _, char := range login {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}

func validatePassword(password string) bool {
	return len(password) >= 1 && len(password) <= maxPasswordBytes
}

// validateMessage trims surrounding whitespace and checks the length in characters.
func validateMessage(text string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return n >= 1 && n <= maxMessageLength
}

func validateTitle(title string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	return n >= 1 && n <= maxTitleLength
}
