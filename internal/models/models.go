package models

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type ChatKind string

const (
	ChatKindGroup   ChatKind = "group"
	ChatKindPrivate ChatKind = "private"
	ChatKindChannel ChatKind = "channel"
)

// Identity is an authenticated user record. The client treats it as
// read-only after fetch; only the server mutates it.
type Identity struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	AvatarRef   string    `json:"avatar_url,omitempty"`
	PrivacyMode bool      `json:"privacy_mode"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen"`
	IsActive    bool      `json:"is_active"`
}

// Conversation is a chat thread with participants and message history.
type Conversation struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	IsPrivate    bool       `json:"is_private"`
	OwnerID      int64      `json:"created_by"`
	Participants []Identity `json:"participants"`
	LastMessage  *Message   `json:"last_message,omitempty"`
	UnreadCount  int        `json:"unread_count,omitempty"`
	Kind         ChatKind   `json:"type,omitempty"`
}

// Message is a single chat message. Author is an optional expansion
// of AuthorID provided by some server responses.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	AuthorID  int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Author    *Identity `json:"user,omitempty"`
}

// DirectoryEntry is the reduced Identity projection used for
// participant search.
type DirectoryEntry struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarRef string `json:"avatar_url,omitempty"`
}

// ConversationSpec is the creation intent for a new conversation.
// Participants are addressed by username, not id.
type ConversationSpec struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	IsPrivate            bool     `json:"is_private"`
	ParticipantUsernames []string `json:"participant_usernames"`
	Kind                 ChatKind `json:"type"`
}

// NormalizeKind returns the effective kind for a conversation with the
// given number of counterpart participants. Exactly one counterpart
// besides the creator makes the conversation private regardless of the
// requested kind; this is a derived field, not a user-settable one.
func NormalizeKind(requested ChatKind, counterparts int) ChatKind {
	if counterparts == 1 {
		return ChatKindPrivate
	}
	if requested == "" {
		return ChatKindGroup
	}
	return requested
}

// SortMessages orders messages ascending by creation time. The sort is
// stable so equal timestamps keep server order.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// LastMessage returns a copy of the chronologically last message, or
// nil for an empty history. The slice is assumed already sorted.
func LastMessage(messages []Message) *Message {
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	return &last
}
