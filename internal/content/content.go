package content

import (
	"errors"
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize strips HTML from inbound message content. The backend is
// not trusted to have cleaned user input, and the result is rendered
// into a terminal where markup is meaningless anyway. Entities the
// policy escapes on the way through are unescaped back to plain text.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// ValidateUsername checks that a participant handle contains only
// allowed characters (alphanumeric, dot, dash, underscore) and is not
// empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
