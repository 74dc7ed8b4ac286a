// Package chats maintains the conversation collection and the active
// message thread, reconciling local state with the server after every
// fetching or mutating operation.
package chats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/session"
	"parley/internal/transport"

	"golang.org/x/sync/singleflight"
)

// Store owns the conversation collection, the selected conversation
// and the message buffer of the active thread. All mutation goes
// through its methods; the accessors hand out copies.
type Store struct {
	client  *transport.Client
	session *session.Store
	logger  *slog.Logger

	mu            sync.RWMutex
	conversations []models.Conversation
	currentID     int64
	hasCurrent    bool
	messages      []models.Message
	errMsg        string
	loading       bool

	// flight serializes LoadConversations: a full list refresh racing
	// an interactive mutation must not clobber it, so at most one
	// refresh is in flight and concurrent callers share its result.
	flight singleflight.Group
}

func New(client *transport.Client, sess *session.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, session: sess, logger: logger}
}

// LoadConversations fetches the visible conversation list and replaces
// the local collection wholesale. Conversations the server returns
// without a populated last-message preview get one derived from their
// fetched history; servers that omit the denormalized field are
// repaired here. No client-side access filtering happens: any
// conversation in the fetched list is trusted as viewable.
func (s *Store) LoadConversations(ctx context.Context) error {
	if s.session.Identity() == nil {
		return nil
	}

	_, err, _ := s.flight.Do("load-conversations", func() (any, error) {
		s.setLoading(true)
		defer s.setLoading(false)

		conversations, err := s.client.ListConversations(ctx)
		if err != nil {
			return nil, s.fail("failed to load chats", err)
		}

		for i := range conversations {
			if conversations[i].LastMessage != nil && conversations[i].LastMessage.Content != "" {
				continue
			}
			messages, err := s.client.ListMessages(ctx, conversations[i].ID)
			if err != nil {
				s.logger.Warn("failed to backfill last message", "chat_id", conversations[i].ID, "error", err)
				continue
			}
			models.SortMessages(messages)
			conversations[i].LastMessage = models.LastMessage(messages)
		}

		s.mu.Lock()
		s.conversations = conversations
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// Select sets the active thread and loads its history. Passing nil
// clears the selection. The server is the authority on access: if a
// conversation made it into the fetched list, it is selectable.
func (s *Store) Select(ctx context.Context, conversation *models.Conversation) error {
	s.mu.Lock()
	s.messages = nil
	if conversation == nil {
		s.hasCurrent = false
		s.currentID = 0
		s.mu.Unlock()
		return nil
	}
	s.hasCurrent = true
	s.currentID = conversation.ID
	s.mu.Unlock()

	return s.LoadMessages(ctx, conversation.ID)
}

// LoadMessages fetches the history of one conversation, sorts it
// ascending by creation time, replaces the message buffer and writes
// the derived last message back into the matching collection entry.
func (s *Store) LoadMessages(ctx context.Context, chatID int64) error {
	if s.session.Identity() == nil {
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	messages, err := s.client.ListMessages(ctx, chatID)
	if err != nil {
		return s.fail("failed to load messages", err)
	}

	for i := range messages {
		messages[i].Content = content.Sanitize(messages[i].Content)
	}
	models.SortMessages(messages)

	s.mu.Lock()
	if s.hasCurrent && s.currentID == chatID {
		s.messages = messages
	}
	if last := models.LastMessage(messages); last != nil {
		for i := range s.conversations {
			if s.conversations[i].ID == chatID {
				s.conversations[i].LastMessage = last
				break
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// Create posts a conversation spec and, on success, prepends the new
// conversation to the collection, selects it and loads its (likely
// empty) history. Exactly one participant username forces the private
// kind regardless of what the spec requested; the transport enforces
// the same invariant redundantly.
func (s *Store) Create(ctx context.Context, spec models.ConversationSpec) (models.Conversation, error) {
	if s.session.Identity() == nil {
		return models.Conversation{}, nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	spec.Kind = models.NormalizeKind(spec.Kind, len(spec.ParticipantUsernames))
	if spec.Kind == models.ChatKindPrivate {
		spec.IsPrivate = true
	}

	conversation, err := s.client.CreateConversation(ctx, spec)
	if err != nil {
		return models.Conversation{}, s.fail("failed to create chat", err)
	}

	s.mu.Lock()
	s.conversations = append([]models.Conversation{conversation}, s.conversations...)
	s.hasCurrent = true
	s.currentID = conversation.ID
	s.messages = nil
	s.mu.Unlock()

	if err := s.LoadMessages(ctx, conversation.ID); err != nil {
		s.logger.Warn("failed to load messages of new chat", "chat_id", conversation.ID, "error", err)
	}
	return conversation, nil
}

// Send posts content to the active thread. Without a selection it is a
// deliberate no-op, not an error: the input control is disabled in that
// state. On success the message is appended without re-sorting (the
// server assigns monotonically increasing timestamps) and the owning
// conversation's last-message preview is updated.
func (s *Store) Send(ctx context.Context, text string) error {
	s.mu.RLock()
	hasCurrent := s.hasCurrent
	chatID := s.currentID
	s.mu.RUnlock()
	if !hasCurrent || s.session.Identity() == nil {
		return nil
	}

	message, err := s.client.SendMessage(ctx, chatID, text)
	if err != nil {
		return s.fail("failed to send message", err)
	}
	message.Content = content.Sanitize(message.Content)

	s.mu.Lock()
	if s.hasCurrent && s.currentID == chatID {
		s.messages = append(s.messages, message)
	}
	last := message
	for i := range s.conversations {
		if s.conversations[i].ID == chatID {
			s.conversations[i].LastMessage = &last
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteMessage removes a message from the active thread. The remote
// delete completes before any local mutation; this is confirmation,
// not optimism. Afterwards the single conversation is refetched to
// refresh its last-message preview (the deleted message may have been
// the last one) — a failed refetch is logged and tolerated, the delete
// itself already succeeded.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	s.mu.RLock()
	hasCurrent := s.hasCurrent
	chatID := s.currentID
	s.mu.RUnlock()
	if !hasCurrent || s.session.Identity() == nil {
		return nil
	}

	if err := s.client.DeleteMessage(ctx, chatID, messageID); err != nil {
		return s.fail("failed to delete message", err)
	}

	s.mu.Lock()
	filtered := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != messageID {
			filtered = append(filtered, m)
		}
	}
	s.messages = filtered
	s.mu.Unlock()

	updated, err := s.client.GetConversation(ctx, chatID)
	if err != nil {
		s.logger.Warn("failed to refresh chat after message delete", "chat_id", chatID, "error", err)
		return nil
	}
	s.replaceConversation(updated)
	return nil
}

// DeleteConversation removes a conversation on server confirmation. If
// the deleted conversation was selected, the selection and message
// buffer are cleared.
func (s *Store) DeleteConversation(ctx context.Context, chatID int64) error {
	if s.session.Identity() == nil {
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.client.DeleteConversation(ctx, chatID); err != nil {
		return s.fail("failed to delete chat", err)
	}

	s.mu.Lock()
	filtered := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ID != chatID {
			filtered = append(filtered, c)
		}
	}
	s.conversations = filtered
	if s.hasCurrent && s.currentID == chatID {
		s.hasCurrent = false
		s.currentID = 0
		s.messages = nil
	}
	s.mu.Unlock()
	return nil
}

// AddParticipants invites users by username, then refetches the full
// conversation for the updated participant list, updating both the
// collection entry and the active selection if it matches.
func (s *Store) AddParticipants(ctx context.Context, chatID int64, usernames []string) error {
	if s.session.Identity() == nil || len(usernames) == 0 {
		return nil
	}

	if err := s.client.AddParticipants(ctx, chatID, usernames); err != nil {
		return s.fail("failed to add participants", err)
	}

	updated, err := s.client.GetConversation(ctx, chatID)
	if err != nil {
		return s.fail("failed to refresh chat after adding participants", err)
	}
	s.replaceConversation(updated)
	return nil
}

// Conversations returns a copy of the collection.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Current returns a copy of the selected conversation, or nil.
func (s *Store) Current() *models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasCurrent {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == s.currentID {
			conversation := c
			return &conversation
		}
	}
	return nil
}

// Messages returns a copy of the active thread's message buffer.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last store-level error message, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// fail records a human-readable store error and rethrows the original,
// so the intent-issuing caller can react locally while a shared banner
// reflects the same failure.
func (s *Store) fail(message string, err error) error {
	s.mu.Lock()
	s.errMsg = fmt.Sprintf("%s: %v", message, err)
	s.mu.Unlock()
	return err
}

func (s *Store) replaceConversation(updated models.Conversation) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == updated.ID {
			s.conversations[i] = updated
			break
		}
	}
	s.mu.Unlock()
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}
