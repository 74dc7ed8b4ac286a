package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/session"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	authorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	listStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).PaddingRight(1)
)

func (m Model) View() string {
	switch m.screen {
	case screenLogin:
		return m.viewAuthForm("Log in", []string{"email", "password"}, "enter: log in · ctrl+r: register · ctrl+c: quit")
	case screenRegister:
		return m.viewAuthForm("Register", []string{"email", "username", "password"}, "enter: register · ctrl+r: back to login · ctrl+c: quit")
	case screenCreate:
		return m.viewCreateForm()
	case screenInvite:
		return m.viewInvite()
	default:
		return m.viewMain()
	}
}

func (m Model) viewAuthForm(title string, labels []string, help string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("parley — "+title) + "\n\n")
	for i, input := range m.inputs {
		b.WriteString(fmt.Sprintf("%-10s %s\n", labels[i], input.View()))
	}
	if m.pending {
		b.WriteString("\n" + dimStyle.Render("working...") + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(help))
	return b.String()
}

func (m Model) viewCreateForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New chat") + "\n\n")
	labels := []string{"name", "about", "invite"}
	for i, input := range m.createInputs {
		b.WriteString(fmt.Sprintf("%-8s %s\n", labels[i], input.View()))
	}
	b.WriteString("\n" + dimStyle.Render("one participant makes the chat private automatically") + "\n")
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("enter: create · tab: next field · esc: cancel"))
	return b.String()
}

func (m Model) viewInvite() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Add participants") + "\n\n")
	b.WriteString(m.searchInput.View() + "\n\n")
	for i, entry := range m.searchResults {
		marker := "[ ]"
		if m.picked[entry.Username] {
			marker = "[x]"
		}
		line := fmt.Sprintf("%s %s <%s>", marker, entry.Username, entry.Email)
		if i == m.searchCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(m.searchResults) == 0 {
		b.WriteString(dimStyle.Render("no matches") + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("ctrl+a: toggle · enter: invite selected · esc: cancel"))
	return b.String()
}

func (m Model) viewMain() string {
	identity := m.session.Identity()
	if identity == nil {
		return dimStyle.Render("no active session")
	}

	listWidth := 32
	if m.width > 0 && m.width < 80 {
		listWidth = m.width / 3
	}

	left := m.renderChatList(listWidth)
	right := m.renderThread()
	body := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(left), right)

	header := titleStyle.Render("parley") + dimStyle.Render(" · "+identity.Username)
	if m.session.Status() == session.StatusUnreachable {
		header += " " + noticeStyle.Render("(unreachable)")
	}
	if expiry := m.session.TokenExpiry(); !expiry.IsZero() {
		header += dimStyle.Render(" · session until " + expiry.Local().Format("15:04"))
	}

	footer := dimStyle.Render("enter: open · i: type · n: new · a: add people · x: delete chat · d: delete last msg · r: refresh · ctrl+l: logout · q: quit")
	if m.chats.Err() != "" {
		footer = noticeStyle.Render(m.chats.Err()) + "  " + dimStyle.Render("(e: dismiss)")
	} else if m.notice != "" {
		footer = noticeStyle.Render(m.notice)
	}

	return header + "\n\n" + body + "\n\n" + footer
}

func (m Model) renderChatList(width int) string {
	conversations := m.chats.Conversations()
	current := m.chats.Current()

	var b strings.Builder
	b.WriteString(dimStyle.Render("chats") + "\n")
	if m.chats.Loading() && len(conversations) == 0 {
		b.WriteString(dimStyle.Render("loading...") + "\n")
	}
	for i, conversation := range conversations {
		name := conversation.Name
		if conversation.Kind == models.ChatKindPrivate {
			name = "@ " + name
		}
		line := truncate(name, width-2)
		if conversation.LastMessage != nil {
			preview := truncate(conversation.LastMessage.Content, width-4)
			line += "\n" + dimStyle.Render("  "+preview)
		}
		switch {
		case current != nil && conversation.ID == current.ID:
			line = selectedStyle.Render(line)
		case i == m.cursor:
			line = lipgloss.NewStyle().Underline(true).Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(conversations) == 0 && !m.chats.Loading() {
		b.WriteString(dimStyle.Render("no chats yet — press n") + "\n")
	}
	return lipgloss.NewStyle().Width(width).Render(b.String())
}

func (m Model) renderThread() string {
	current := m.chats.Current()
	if current == nil {
		return dimStyle.Render("select a chat and press enter")
	}

	var b strings.Builder
	title := current.Name
	if len(current.Participants) > 0 {
		names := make([]string, 0, len(current.Participants))
		for _, p := range current.Participants {
			names = append(names, p.Username)
		}
		title += dimStyle.Render(" · " + strings.Join(names, ", "))
	}
	b.WriteString(title + "\n\n")

	messages := m.chats.Messages()
	visible := messages
	if maxLines := m.height - 10; maxLines > 0 && len(visible) > maxLines {
		visible = visible[len(visible)-maxLines:]
	}
	for _, message := range visible {
		author := fmt.Sprintf("#%d", message.AuthorID)
		if message.Author != nil {
			author = message.Author.Username
		}
		timestamp := message.CreatedAt.Local().Format("15:04")
		b.WriteString(authorStyle.Render(author) + dimStyle.Render(" "+timestamp) + "\n")
		b.WriteString(content.RenderTerminal(message.Content) + "\n")
	}
	if len(messages) == 0 {
		b.WriteString(dimStyle.Render("no messages yet") + "\n")
	}

	b.WriteString("\n")
	if m.typing {
		b.WriteString(m.msgInput.View())
	} else {
		b.WriteString(dimStyle.Render("press i to type"))
	}
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
