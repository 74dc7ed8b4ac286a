package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
)

const DefaultTimeout = 30 * time.Second

// probeEndpoints is the ordered list of lightweight endpoints tried by
// ProbeAvailability. The first 2xx wins.
var probeEndpoints = []string{"/api/health", "/", "/docs"}

// TokenSource returns the current bearer credential, or "" when no
// session is active. The Session Store owns the credential; the client
// only reads it per request.
type TokenSource func() string

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token supplies the bearer credential for authenticated calls.
	Token TokenSource
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs authenticated HTTP calls against the messaging
// backend and normalizes its responses. It holds no persistent state:
// credential persistence belongs to the Session Store alone.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpClient,
		token:   token,
		logger:  logger,
	}, nil
}

// HTTPClient exposes the underlying client so collaborators (avatar
// cache) reuse the same timeout and transport settings.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// BaseURL returns the configured backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes one request and returns the response body for 2xx
// statuses. Non-2xx statuses become typed errors per the taxonomy;
// network failures map to KindRequestFailed.
func (c *Client) do(ctx context.Context, method, path string, payload any, authenticated bool) ([]byte, error) {
	op := method + " " + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Body: err.Error(), Op: op}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Status: resp.StatusCode, Body: err.Error(), Op: op}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: classify(resp.StatusCode), Status: resp.StatusCode, Body: string(respBody), Op: op}
	}
	return respBody, nil
}

// ProbeAvailability checks backend connectivity by walking a fixed
// ordered list of lightweight endpoints. It succeeds on the first 2xx
// and fails with KindUnreachable only after every endpoint failed. It
// is a connectivity gate, not an authenticated call.
func (c *Client) ProbeAvailability(ctx context.Context) error {
	for _, endpoint := range probeEndpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			continue
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("probe endpoint unreachable", "endpoint", endpoint, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil
		}
		c.logger.Debug("probe endpoint refused", "endpoint", endpoint, "status", resp.StatusCode)
	}
	return &Error{Kind: KindUnreachable, Op: "probe availability"}
}

// Authenticate exchanges credentials for an identity and bearer token.
// Any non-2xx is an InvalidCredentials failure carrying the server
// body; a success body goes through envelope normalization.
func (c *Client) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	payload := map[string]string{"email": email, "password": password}
	body, err := c.do(ctx, http.MethodPost, "/auth/login", payload, false)
	if err != nil {
		if te, ok := err.(*Error); ok && te.Kind != KindRequestFailed {
			te.Kind = KindInvalidCredentials
		}
		return AuthResult{}, err
	}
	return normalizeAuthEnvelope(body, fallbackHints{Email: email}, c.logger)
}

// Register creates an account. The returned identity and token are
// handed back to the caller; adopting them as the active session is a
// Session Store policy decision, not the transport's.
func (c *Client) Register(ctx context.Context, email, username, password string) (AuthResult, error) {
	payload := map[string]string{"email": email, "username": username, "password": password}
	body, err := c.do(ctx, http.MethodPost, "/auth/register", payload, false)
	if err != nil {
		if te, ok := err.(*Error); ok && te.Kind != KindRequestFailed {
			te.Kind = KindInvalidCredentials
		}
		return AuthResult{}, err
	}
	return normalizeAuthEnvelope(body, fallbackHints{Email: email, Username: username}, c.logger)
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/chats/", nil, true)
	if err != nil {
		return nil, err
	}
	var conversations []models.Conversation
	if err := json.Unmarshal(body, &conversations); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode conversations"}
	}
	return conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d", id), nil, true)
	if err != nil {
		return models.Conversation{}, err
	}
	var conversation models.Conversation
	if err := json.Unmarshal(body, &conversation); err != nil {
		return models.Conversation{}, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode conversation"}
	}
	return conversation, nil
}

// CreateConversation posts a creation spec. The private-kind invariant
// is enforced here as well as in the Conversation Store: exactly one
// participant username makes the conversation private no matter what
// kind the spec requested.
func (c *Client) CreateConversation(ctx context.Context, spec models.ConversationSpec) (models.Conversation, error) {
	spec.Kind = models.NormalizeKind(spec.Kind, len(spec.ParticipantUsernames))
	if spec.Kind == models.ChatKindPrivate {
		spec.IsPrivate = true
	}
	body, err := c.do(ctx, http.MethodPost, "/api/chats/", spec, true)
	if err != nil {
		return models.Conversation{}, err
	}
	var conversation models.Conversation
	if err := json.Unmarshal(body, &conversation); err != nil {
		return models.Conversation{}, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode created conversation"}
	}
	return conversation, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chats/%d", id), nil, true)
	return err
}

func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chatID), nil, true)
	if err != nil {
		return nil, err
	}
	var messages []models.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode messages"}
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, content string) (models.Message, error) {
	payload := map[string]any{"content": content, "chat_id": chatID}
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), payload, true)
	if err != nil {
		return models.Message{}, err
	}
	var message models.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return models.Message{}, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode sent message"}
	}
	return message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chats/%d/messages/%d", chatID, messageID), nil, true)
	return err
}

func (c *Client) ListParticipants(ctx context.Context, chatID int64) ([]models.Identity, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d/participants", chatID), nil, true)
	if err != nil {
		return nil, err
	}
	var participants []models.Identity
	if err := json.Unmarshal(body, &participants); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode participants"}
	}
	return participants, nil
}

func (c *Client) AddParticipants(ctx context.Context, chatID int64, usernames []string) error {
	payload := map[string]any{"participant_usernames": usernames}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/participants", chatID), payload, true)
	return err
}

// SearchDirectory queries the server-side roster search. A 404 means
// the capability is absent on this backend and degrades to an empty
// result set rather than an error.
func (c *Client) SearchDirectory(ctx context.Context, query string) ([]models.DirectoryEntry, error) {
	path := "/api/users/search?q=" + url.QueryEscape(query)
	body, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return []models.DirectoryEntry{}, nil
		}
		return nil, err
	}
	var entries []models.DirectoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode search results"}
	}
	return entries, nil
}

func (c *Client) ListDirectory(ctx context.Context) ([]models.DirectoryEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/users", nil, true)
	if err != nil {
		return nil, err
	}
	var entries []models.DirectoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Body: string(body), Op: "decode directory"}
	}
	return entries, nil
}
