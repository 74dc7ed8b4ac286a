// Package backendtest is an in-memory stand-in for the remote
// messaging backend, used by store and transport tests. It implements
// the same REST surface the real server exposes and keeps its state in
// plain slices so tests can inspect and pre-seed it.
package backendtest

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"parley/internal/models"
)

const Token = "test-token"

// Server wraps an httptest.Server with mutable fixture state. Fields
// are safe to adjust before issuing requests; the mutex only guards
// handler-side mutation.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    []models.DirectoryEntry
	chats    []models.Conversation
	messages map[int64][]models.Message
	nextID   int64

	// LoginBody overrides the login response envelope when set, for
	// exercising the normalization attempt-parsers.
	LoginBody any
	// OmitLastMessage strips the last_message preview from listed
	// chats, simulating servers that skip the denormalized field.
	OmitLastMessage bool
	// FailSearch makes /api/users/search return 500.
	FailSearch bool
	// DropSearch makes /api/users/search return 404, simulating a
	// backend without the capability.
	DropSearch bool
	// FailGetChat makes single-chat fetches return 500.
	FailGetChat bool
	// FailListUsers makes /api/users return 500.
	FailListUsers bool
}

func New() *Server {
	s := &Server{
		messages: make(map[int64][]models.Message),
		nextID:   100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /auth/login", s.loginHandler)
	mux.HandleFunc("POST /auth/register", s.registerHandler)
	mux.HandleFunc("GET /api/chats/", s.requireAuth(s.listChatsHandler))
	mux.HandleFunc("POST /api/chats/", s.requireAuth(s.createChatHandler))
	mux.HandleFunc("GET /api/chats/{id}", s.requireAuth(s.getChatHandler))
	mux.HandleFunc("DELETE /api/chats/{id}", s.requireAuth(s.deleteChatHandler))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.requireAuth(s.listMessagesHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.requireAuth(s.sendMessageHandler))
	mux.HandleFunc("DELETE /api/chats/{id}/messages/{messageId}", s.requireAuth(s.deleteMessageHandler))
	mux.HandleFunc("GET /api/chats/{id}/participants", s.requireAuth(s.listParticipantsHandler))
	mux.HandleFunc("POST /api/chats/{id}/participants", s.requireAuth(s.addParticipantsHandler))
	mux.HandleFunc("GET /api/users", s.requireAuth(s.listUsersHandler))
	mux.HandleFunc("GET /api/users/search", s.requireAuth(s.searchUsersHandler))

	s.Server = httptest.NewServer(mux)
	return s
}

// SeedUser adds a roster entry.
func (s *Server) SeedUser(entry models.DirectoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, entry)
}

// SeedChat adds a conversation and its message history.
func (s *Server) SeedChat(chat models.Conversation, history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, chat)
	s.messages[chat.ID] = history
}

// Chats returns a copy of the server-side conversation list.
func (s *Server) Chats() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.chats))
	copy(out, s.chats)
	return out
}

// MessagesOf returns a copy of one chat's history.
func (s *Server) MessagesOf(chatID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password == "wrong" {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	body := s.LoginBody
	if body == nil {
		body = map[string]any{
			"user": map[string]any{
				"id":       int64(1),
				"email":    req.Email,
				"username": "tester",
			},
			"token": Token,
		}
	}
	writeJSON(w, body)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "taken" {
		http.Error(w, "username already registered", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{
		"user": map[string]any{
			"id":       int64(2),
			"email":    req.Email,
			"username": req.Username,
		},
		"token": "registration-token",
	})
}

func (s *Server) listChatsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.chats))
	copy(out, s.chats)
	if s.OmitLastMessage {
		for i := range out {
			out[i].LastMessage = nil
		}
	}
	writeJSON(w, out)
}

func (s *Server) createChatHandler(w http.ResponseWriter, r *http.Request) {
	var spec models.ConversationSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	chat := models.Conversation{
		ID:          s.nextID,
		Name:        spec.Name,
		Description: spec.Description,
		IsPrivate:   spec.IsPrivate,
		Kind:        spec.Kind,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	for _, username := range spec.ParticipantUsernames {
		chat.Participants = append(chat.Participants, models.Identity{Username: username})
	}
	s.chats = append(s.chats, chat)
	s.messages[chat.ID] = nil
	writeJSON(w, chat)
}

func (s *Server) getChatHandler(w http.ResponseWriter, r *http.Request) {
	if s.FailGetChat {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	id := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.ID == id {
			// Refresh the preview from the authoritative history.
			history := s.messages[id]
			chat.LastMessage = models.LastMessage(history)
			writeJSON(w, chat)
			return
		}
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func (s *Server) deleteChatHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, chat := range s.chats {
		if chat.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			delete(s.messages, id)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[id]))
	copy(out, s.messages[id])
	writeJSON(w, out)
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	var req struct {
		Content string `json:"content"`
		ChatID  int64  `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message := models.Message{
		ID:        s.nextID,
		ChatID:    id,
		AuthorID:  1,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.messages[id] = append(s.messages[id], message)
	writeJSON(w, message)
}

func (s *Server) deleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	messageID := pathID(r, "messageId")
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.messages[id]
	for i, message := range history {
		if message.ID == messageID {
			s.messages[id] = append(history[:i], history[i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	http.Error(w, "message not found", http.StatusNotFound)
}

func (s *Server) listParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.ID == id {
			writeJSON(w, chat.Participants)
			return
		}
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func (s *Server) addParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	var req struct {
		ParticipantUsernames []string `json:"participant_usernames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			for _, username := range req.ParticipantUsernames {
				s.chats[i].Participants = append(s.chats[i].Participants, models.Identity{Username: username})
			}
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	if s.FailListUsers {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DirectoryEntry, len(s.users))
	copy(out, s.users)
	writeJSON(w, out)
}

func (s *Server) searchUsersHandler(w http.ResponseWriter, r *http.Request) {
	if s.FailSearch {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if s.DropSearch {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	query := r.URL.Query().Get("q")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DirectoryEntry
	for _, user := range s.users {
		if query == "" || containsFold(user.Username, query) || containsFold(user.Email, query) {
			out = append(out, user)
		}
	}
	if out == nil {
		out = []models.DirectoryEntry{}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
