package utils

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CreatedAtLayout is the group creation timestamp format (yyyy-MM-dd HH:mm:ss).
const CreatedAtLayout = "2006-01-02 15:04:05"

// NormalizeUserKey turns an email into a database key: dots are not allowed
// in Firebase keys, so every "." becomes a space.
func NormalizeUserKey(email string) string {
	email = norm.NFC.String(strings.TrimSpace(email))
	return strings.ReplaceAll(email, ".", " ")
}

// DenormalizeUserKey restores the dotted email from a user key.
func DenormalizeUserKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), " ", ".")
}

// TrimMax trims a string to a maximum number of runes
func TrimMax(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func FormatCreatedAt(t time.Time) string {
	return t.Format(CreatedAtLayout)
}
