// Package ui is the terminal presentation shell. It renders store
// state and translates key presses into store method calls; all
// synchronization logic lives in the stores themselves.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/avatar"
	"parley/internal/chats"
	"parley/internal/content"
	"parley/internal/directory"
	"parley/internal/models"
	"parley/internal/session"
)

type screen int

const (
	screenLogin screen = iota
	screenRegister
	screenMain
	screenCreate
	screenInvite
)

// refreshInterval drives the poll/refetch cycle. There is no push
// channel; the active thread and the chat list are refetched on a
// timer.
const refreshInterval = 5 * time.Second

// searchDebounce coalesces participant-search keystrokes into one
// directory query. Responsiveness optimization, not correctness.
const searchDebounce = 300 * time.Millisecond

type sessionReadyMsg struct{ err error }
type loginDoneMsg struct{ err error }
type registerDoneMsg struct{ err error }
type chatsLoadedMsg struct{ err error }
type messagesLoadedMsg struct{ err error }
type actionDoneMsg struct{ err error }
type directoryLoadedMsg struct{}
type refreshTickMsg struct{}
type searchTickMsg struct{ seq int }
type searchResultsMsg struct {
	seq     int
	entries []models.DirectoryEntry
}

type Model struct {
	ctx       context.Context
	session   *session.Store
	chats     *chats.Store
	directory *directory.Cache
	avatars   *avatar.Cache

	screen screen
	width  int
	height int

	// Login / register form.
	inputs     []textinput.Model
	focusIndex int

	// Main view.
	cursor   int
	msgInput textinput.Model
	typing   bool
	pending  bool

	// Create-chat form: name, description, participants.
	createInputs []textinput.Model

	// Invite flow.
	searchInput   textinput.Model
	searchSeq     int
	searchResults []models.DirectoryEntry
	searchCursor  int
	picked        map[string]bool

	notice string
}

func NewModel(ctx context.Context, sess *session.Store, chatStore *chats.Store, dir *directory.Cache) Model {
	m := Model{
		ctx:       ctx,
		session:   sess,
		chats:     chatStore,
		directory: dir,
		screen:    screenLogin,
		picked:    make(map[string]bool),
	}
	m.inputs = loginInputs()
	m.msgInput = newInput("message", 512)
	m.searchInput = newInput("search users", 64)
	m.createInputs = createInputs()
	return m
}

// WithAvatars enables background avatar prefetching into the given
// cache after the roster loads.
func (m Model) WithAvatars(cache *avatar.Cache) Model {
	m.avatars = cache
	return m
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	return in
}

func loginInputs() []textinput.Model {
	email := newInput("email", 128)
	email.Focus()
	password := newInput("password", 128)
	password.EchoMode = textinput.EchoPassword
	return []textinput.Model{email, password}
}

func registerInputs() []textinput.Model {
	email := newInput("email", 128)
	email.Focus()
	username := newInput("username", 64)
	password := newInput("password", 128)
	password.EchoMode = textinput.EchoPassword
	return []textinput.Model{email, username, password}
}

func createInputs() []textinput.Model {
	name := newInput("chat name", 128)
	name.Focus()
	description := newInput("description (optional)", 256)
	participants := newInput("participants (comma-separated usernames)", 256)
	return []textinput.Model{name, description, participants}
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg {
		return sessionReadyMsg{err: m.session.Init(m.ctx)}
	}
}

func (m Model) loadChatsCmd() tea.Cmd {
	return func() tea.Msg {
		return chatsLoadedMsg{err: m.chats.LoadConversations(m.ctx)}
	}
}

func (m Model) loadDirectoryCmd() tea.Cmd {
	return func() tea.Msg {
		_ = m.directory.LoadAll(m.ctx)
		return directoryLoadedMsg{}
	}
}

// warmAvatarsCmd prefetches the avatars of the current identity and
// every cached roster entry. Failures are ignored; the cache is an
// optimization, not a dependency.
func (m Model) warmAvatarsCmd() tea.Cmd {
	if m.avatars == nil {
		return nil
	}
	cache := m.avatars
	identity := m.session.Identity()
	entries := m.directory.All()
	return func() tea.Msg {
		if identity != nil && identity.AvatarRef != "" {
			_, _ = cache.Fetch(m.ctx, identity.AvatarRef)
		}
		for _, entry := range entries {
			if entry.AvatarRef != "" {
				_, _ = cache.Fetch(m.ctx, entry.AvatarRef)
			}
		}
		return nil
	}
}

func (m Model) selectCmd(conversation *models.Conversation) tea.Cmd {
	return func() tea.Msg {
		return messagesLoadedMsg{err: m.chats.Select(m.ctx, conversation)}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: m.chats.Send(m.ctx, text)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func (m Model) searchCmd(seq int, query string) tea.Cmd {
	return func() tea.Msg {
		return searchResultsMsg{seq: seq, entries: m.directory.Search(m.ctx, query)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionReadyMsg:
		if m.session.Status() == session.StatusAuthenticated {
			m.screen = screenMain
			return m, tea.Batch(m.loadChatsCmd(), m.loadDirectoryCmd(), m.refreshCmd())
		}
		if m.session.Status() == session.StatusUnreachable {
			m.notice = "backend unreachable"
		}
		return m, nil

	case loginDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = "login failed: " + msg.err.Error()
			return m, nil
		}
		m.screen = screenMain
		m.notice = ""
		return m, tea.Batch(m.loadChatsCmd(), m.loadDirectoryCmd(), m.refreshCmd())

	case registerDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = "registration failed: " + msg.err.Error()
			return m, nil
		}
		// Account creation is separate from session creation: back to
		// the login form for an explicit confirm-by-login.
		m.screen = screenLogin
		m.inputs = loginInputs()
		m.focusIndex = 0
		m.notice = "registration succeeded, please log in"
		return m, nil

	case chatsLoadedMsg:
		if msg.err != nil {
			m.notice = m.chats.Err()
		}
		return m, nil

	case directoryLoadedMsg:
		return m, m.warmAvatarsCmd()

	case messagesLoadedMsg:
		if msg.err != nil {
			m.notice = m.chats.Err()
		}
		return m, nil

	case actionDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = m.chats.Err()
		}
		return m, nil

	case refreshTickMsg:
		if m.screen != screenMain || m.session.Identity() == nil {
			return m, m.refreshCmd()
		}
		cmds := []tea.Cmd{m.loadChatsCmd(), m.refreshCmd()}
		if current := m.chats.Current(); current != nil {
			id := current.ID
			cmds = append(cmds, func() tea.Msg {
				return messagesLoadedMsg{err: m.chats.LoadMessages(m.ctx, id)}
			})
		}
		return m, tea.Batch(cmds...)

	case searchTickMsg:
		if msg.seq != m.searchSeq {
			return m, nil
		}
		return m, m.searchCmd(msg.seq, m.searchInput.Value())

	case searchResultsMsg:
		if msg.seq != m.searchSeq {
			return m, nil
		}
		m.searchResults = msg.entries
		if m.searchCursor >= len(m.searchResults) {
			m.searchCursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.screen {
	case screenLogin, screenRegister:
		return m.updateAuthForm(msg)
	case screenCreate:
		return m.updateCreateForm(msg)
	case screenInvite:
		return m.updateInvite(msg)
	default:
		return m.updateMain(msg)
	}
}

func (m Model) updateAuthForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		m.focusIndex = (m.focusIndex + 1) % len(m.inputs)
		return m.refocusInputs()
	case tea.KeyShiftTab, tea.KeyUp:
		m.focusIndex = (m.focusIndex - 1 + len(m.inputs)) % len(m.inputs)
		return m.refocusInputs()
	case tea.KeyEnter:
		if m.pending {
			return m, nil
		}
		return m.submitAuthForm()
	}

	switch msg.String() {
	case "ctrl+r":
		if m.screen == screenLogin {
			m.screen = screenRegister
			m.inputs = registerInputs()
		} else {
			m.screen = screenLogin
			m.inputs = loginInputs()
		}
		m.focusIndex = 0
		m.notice = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m Model) refocusInputs() (tea.Model, tea.Cmd) {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return m, nil
}

func (m Model) submitAuthForm() (tea.Model, tea.Cmd) {
	m.pending = true
	m.notice = ""
	if m.screen == screenLogin {
		email := m.inputs[0].Value()
		password := m.inputs[1].Value()
		return m, func() tea.Msg {
			return loginDoneMsg{err: m.session.Login(m.ctx, email, password)}
		}
	}
	email := m.inputs[0].Value()
	username := m.inputs[1].Value()
	password := m.inputs[2].Value()
	if err := content.ValidateUsername(username); err != nil {
		m.pending = false
		m.notice = err.Error()
		return m, nil
	}
	return m, func() tea.Msg {
		return registerDoneMsg{err: m.session.Register(m.ctx, email, username, password)}
	}
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.typing {
		switch msg.Type {
		case tea.KeyEsc:
			m.typing = false
			m.msgInput.Blur()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.msgInput.Value())
			if text == "" || m.pending {
				return m, nil
			}
			m.msgInput.SetValue("")
			m.pending = true
			return m, m.sendCmd(text)
		}
		var cmd tea.Cmd
		m.msgInput, cmd = m.msgInput.Update(msg)
		return m, cmd
	}

	conversations := m.chats.Conversations()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(conversations)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if m.cursor < len(conversations) {
			conversation := conversations[m.cursor]
			return m, m.selectCmd(&conversation)
		}
		return m, nil
	case "i":
		m.typing = true
		m.msgInput.Focus()
		return m, nil
	case "n":
		m.screen = screenCreate
		m.createInputs = createInputs()
		m.focusIndex = 0
		m.notice = ""
		return m, nil
	case "a":
		if current := m.chats.Current(); current != nil {
			m.screen = screenInvite
			m.searchInput = newInput("search users", 64)
			m.searchInput.Focus()
			m.searchResults = m.directory.All()
			m.searchCursor = 0
			m.picked = make(map[string]bool)
		}
		return m, nil
	case "x":
		if current := m.chats.Current(); current != nil {
			id := current.ID
			return m, func() tea.Msg {
				return actionDoneMsg{err: m.chats.DeleteConversation(m.ctx, id)}
			}
		}
		return m, nil
	case "d":
		messages := m.chats.Messages()
		if len(messages) > 0 {
			id := messages[len(messages)-1].ID
			return m, func() tea.Msg {
				return actionDoneMsg{err: m.chats.DeleteMessage(m.ctx, id)}
			}
		}
		return m, nil
	case "r":
		return m, m.loadChatsCmd()
	case "ctrl+l":
		m.session.Logout()
		m.screen = screenLogin
		m.inputs = loginInputs()
		m.focusIndex = 0
		m.cursor = 0
		m.notice = ""
		return m, nil
	case "e":
		m.notice = ""
		m.chats.ClearError()
		return m, nil
	}
	return m, nil
}

func (m Model) updateCreateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.screen = screenMain
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		m.focusIndex = (m.focusIndex + 1) % len(m.createInputs)
		for i := range m.createInputs {
			if i == m.focusIndex {
				m.createInputs[i].Focus()
			} else {
				m.createInputs[i].Blur()
			}
		}
		return m, nil
	case tea.KeyEnter:
		if m.pending {
			return m, nil
		}
		spec := models.ConversationSpec{
			Name:        strings.TrimSpace(m.createInputs[0].Value()),
			Description: strings.TrimSpace(m.createInputs[1].Value()),
			Kind:        models.ChatKindGroup,
		}
		for _, username := range strings.Split(m.createInputs[2].Value(), ",") {
			username = strings.TrimSpace(username)
			if username == "" {
				continue
			}
			if err := content.ValidateUsername(username); err != nil {
				m.notice = err.Error()
				return m, nil
			}
			spec.ParticipantUsernames = append(spec.ParticipantUsernames, username)
		}
		if spec.Name == "" {
			m.notice = "chat name cannot be empty"
			return m, nil
		}
		m.pending = true
		m.screen = screenMain
		m.cursor = 0
		return m, func() tea.Msg {
			_, err := m.chats.Create(m.ctx, spec)
			return actionDoneMsg{err: err}
		}
	}

	var cmd tea.Cmd
	m.createInputs[m.focusIndex], cmd = m.createInputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m Model) updateInvite(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.screen = screenMain
		return m, nil
	case tea.KeyUp:
		if m.searchCursor > 0 {
			m.searchCursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.searchCursor < len(m.searchResults)-1 {
			m.searchCursor++
		}
		return m, nil
	case tea.KeyCtrlA:
		// Toggle selection of the highlighted user.
		if m.searchCursor < len(m.searchResults) {
			username := m.searchResults[m.searchCursor].Username
			m.picked[username] = !m.picked[username]
		}
		return m, nil
	case tea.KeyEnter:
		current := m.chats.Current()
		if current == nil {
			m.screen = screenMain
			return m, nil
		}
		var usernames []string
		for username, selected := range m.picked {
			if selected {
				usernames = append(usernames, username)
			}
		}
		id := current.ID
		m.screen = screenMain
		if len(usernames) == 0 {
			return m, nil
		}
		return m, func() tea.Msg {
			return actionDoneMsg{err: m.chats.AddParticipants(m.ctx, id, usernames)}
		}
	}

	var cmd tea.Cmd
	before := m.searchInput.Value()
	m.searchInput, cmd = m.searchInput.Update(msg)
	if m.searchInput.Value() != before {
		m.searchSeq++
		seq := m.searchSeq
		return m, tea.Batch(cmd, tea.Tick(searchDebounce, func(time.Time) tea.Msg {
			return searchTickMsg{seq: seq}
		}))
	}
	return m, cmd
}
