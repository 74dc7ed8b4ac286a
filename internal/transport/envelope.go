package transport

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
)

// AuthResult is the canonical shape every auth envelope is normalized
// into: the authenticated identity plus its bearer token.
type AuthResult struct {
	Identity models.Identity
	Token    string
}

// fallbackHints carries the request-side values used to fill gaps when
// the server response omits identity fields.
type fallbackHints struct {
	Email    string
	Username string
}

// normalizeAuthEnvelope decodes a successful auth response body. The
// server's envelope shape is not stable, so decoding is an ordered list
// of attempts:
//
//  1. {user, token}
//  2. {access_token, user} or {user, accessToken}
//  3. flat object with id+email at top level, token from sibling fields
//  4. nested under "data" or "result"
//
// If none match, an identity is synthesized from best-effort field
// guesses (username derived from the email local-part when absent) and
// a token is synthesized if the body carries none. The fallback is
// logged so contract drift stays observable. Only an unparseable body
// is a hard failure.
func normalizeAuthEnvelope(body []byte, hints fallbackHints, logger *slog.Logger) (AuthResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return AuthResult{}, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode auth envelope"}
	}

	if user, ok := raw["user"].(map[string]any); ok {
		if token := firstString(raw, "token", "access_token", "accessToken"); token != "" {
			return AuthResult{Identity: identityFrom(user, hints), Token: token}, nil
		}
	}

	if _, hasID := raw["id"]; hasID {
		if _, hasEmail := raw["email"]; hasEmail {
			token := firstString(raw, "token", "access_token", "accessToken")
			result := AuthResult{Identity: identityFrom(raw, hints), Token: token}
			if result.Token == "" {
				result.Token = syntheticToken()
				logger.Warn("auth envelope missing token, synthesized one", "keys", keysOf(raw))
			}
			return result, nil
		}
	}

	for _, wrapper := range []string{"data", "result"} {
		nested, ok := raw[wrapper].(map[string]any)
		if !ok {
			continue
		}
		user, ok := nested["user"].(map[string]any)
		if !ok {
			continue
		}
		if token := firstString(nested, "token", "access_token", "accessToken"); token != "" {
			return AuthResult{Identity: identityFrom(user, hints), Token: token}, nil
		}
	}

	// Unrecognized but parseable success body: synthesize rather than
	// hard-fail, so an unstable backend contract does not lock users out.
	logger.Warn("unrecognized auth envelope, synthesizing identity", "keys", keysOf(raw))
	result := AuthResult{Identity: identityFrom(raw, hints)}
	result.Token = firstString(raw, "token", "access_token", "accessToken")
	if result.Token == "" {
		result.Token = syntheticToken()
	}
	return result, nil
}

// identityFrom builds an Identity from a loosely typed object, filling
// gaps from the request hints. Unknown or missing fields degrade to
// usable defaults instead of failing.
func identityFrom(obj map[string]any, hints fallbackHints) models.Identity {
	id := models.Identity{
		ID:          firstInt64(obj, "id", "user_id"),
		Email:       firstString(obj, "email"),
		Username:    firstString(obj, "username", "name"),
		AvatarRef:   firstString(obj, "avatar_url", "avatar", "profile_picture"),
		PrivacyMode: firstBool(obj, "privacy_mode", "privacy", "private"),
		CreatedAt:   firstTime(obj, "created_at", "created"),
		LastSeenAt:  firstTime(obj, "last_seen", "last_seen_at", "updated_at"),
		IsActive:    true,
	}
	if v, ok := obj["is_active"].(bool); ok {
		id.IsActive = v
	}
	if id.Email == "" {
		id.Email = hints.Email
	}
	if id.Username == "" {
		id.Username = hints.Username
	}
	if id.Username == "" {
		id.Username = localPart(id.Email)
	}
	return id
}

// localPart returns everything before the '@' of an email address.
func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func syntheticToken() string {
	return "synthetic-" + uuid.NewString()
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstBool(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := obj[k].(bool); ok {
			return b
		}
	}
	return false
}

func firstInt64(obj map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			return int64(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
		}
	}
	return 0
}

func firstTime(obj map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		s, ok := obj[k].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func keysOf(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}
