// Package tui renders the task list, the statistics card and the assistant
// chat in the terminal. All state lives in the ui controllers; this package
// only maps keys to their operations and draws snapshots.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tasksuite/tasks/internal/model"
	"github.com/tasksuite/tasks/internal/ui/chatpanel"
	"github.com/tasksuite/tasks/internal/ui/stats"
	"github.com/tasksuite/tasks/internal/ui/tasklist"
)

type focus int

const (
	focusList focus = iota
	focusInput
	focusChat
)

// tasksDoneMsg reports the end of a task list operation.
type tasksDoneMsg struct{ err error }

type statsDoneMsg struct{}

// ChatChangedMsg asks for a redraw after the chat panel changed on its own,
// e.g. on a pushed conversation update.
type ChatChangedMsg struct{}

// TasksChangedMsg asks for a task list refetch.
type TasksChangedMsg struct{}

type chatSentMsg struct{ err error }

type Model struct {
	ctx   context.Context
	tasks *tasklist.Controller
	stats *stats.Card
	chat  *chatpanel.Panel
	// tokenURL is where a browser login ends up, showing the session token.
	tokenURL string

	keys      KeyMap
	help      help.Model
	input     textinput.Model
	chatInput textinput.Model
	focus     focus
	cursor    int
	status    string
	width     int
	height    int
}

func New(ctx context.Context, tasks *tasklist.Controller, card *stats.Card, chat *chatpanel.Panel, tokenURL string) Model {
	input := textinput.New()
	input.Placeholder = "What needs to be done?"
	input.Prompt = "+ "
	input.CharLimit = 500

	chatInput := textinput.New()
	chatInput.Placeholder = "Ask the assistant..."
	chatInput.Prompt = "> "
	chatInput.CharLimit = 2000

	return Model{
		ctx:       ctx,
		tasks:     tasks,
		stats:     card,
		chat:      chat,
		tokenURL:  tokenURL,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		input:     input,
		chatInput: chatInput,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.fetchStats())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		return tasksDoneMsg{err: m.tasks.Load(m.ctx)}
	}
}

func (m Model) taskOp(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return tasksDoneMsg{err: op(m.ctx)}
	}
}

func (m Model) fetchStats() tea.Cmd {
	return func() tea.Msg {
		m.stats.Fetch(m.ctx)
		return statsDoneMsg{}
	}
}

func (m Model) chatOp(op func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		op(m.ctx)
		return ChatChangedMsg{}
	}
}

func (m Model) selected() (model.Task, bool) {
	tasks := m.tasks.Snapshot().Tasks
	if m.cursor < 0 || m.cursor >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.cursor], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tasksDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		if n := len(m.tasks.Snapshot().Tasks); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, nil

	case TasksChangedMsg:
		return m, m.taskOp(m.tasks.Refresh)

	case statsDoneMsg, ChatChangedMsg:
		return m, nil

	case chatSentMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.chatInput.SetValue(m.chat.Snapshot().Input)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			m.chat.Close()
			return m, tea.Quit
		}
		switch m.focus {
		case focusInput:
			return m.updateInput(msg)
		case focusChat:
			return m.updateChat(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.chat.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.tasks.Snapshot().Tasks)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.NewTask):
		m.focus = focusInput
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			id, completed := t.ID, !t.Completed
			return m, m.taskOp(func(ctx context.Context) error {
				return m.tasks.Toggle(ctx, id, completed)
			})
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			id := t.ID
			return m, m.taskOp(func(ctx context.Context) error {
				return m.tasks.Delete(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.ClearCompleted):
		if m.tasks.Snapshot().ShowClearCompleted() {
			return m, m.taskOp(m.tasks.ClearCompleted)
		}
	case key.Matches(msg, m.keys.Stats):
		return m, m.fetchStats()
	case key.Matches(msg, m.keys.Login):
		m.status = "Log in at " + m.tasks.LoginURL(m.tokenURL) + " then set TASKS_TOKEN to the token shown."
	case key.Matches(msg, m.keys.Logout):
		m.status = "Log out at " + m.tasks.LogoutURL("") + " and unset TASKS_TOKEN."
	case key.Matches(msg, m.keys.Chat):
		m.focus = focusChat
		cmds := []tea.Cmd{m.chatInput.Focus()}
		if !m.chat.Snapshot().Open() {
			cmds = append(cmds, m.chatOp(m.chat.Open))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.input.Blur()
		m.focus = focusList
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.tasks.SetInput(m.input.Value())
		if !m.tasks.Snapshot().CanSubmit() {
			return m, nil
		}
		m.input.Reset()
		return m, m.taskOp(m.tasks.Submit)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.tasks.SetInput(m.input.Value())
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Chat):
		m.chat.Close()
		m.chatInput.Reset()
		m.chatInput.Blur()
		m.focus = focusList
		return m, nil
	case key.Matches(msg, m.keys.NewChat):
		return m, m.chatOp(m.chat.NewConversation)
	case key.Matches(msg, m.keys.Submit):
		if !m.chat.Snapshot().InputEnabled() {
			return m, nil
		}
		m.chat.SetInput(m.chatInput.Value())
		m.chatInput.Reset()
		return m, func() tea.Msg {
			return chatSentMsg{err: m.chat.Send(m.ctx)}
		}
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	state := m.tasks.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Tasks"))
	b.WriteString("  ")
	b.WriteString(m.viewUser(state))
	b.WriteString("\n\n")
	b.WriteString(m.viewStats())
	b.WriteString("\n")
	if header := state.Header(); header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.viewTasks(state))
	if state.ShowClearCompleted() {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Clear completed (%d)", state.CompletedCount())))
	}
	b.WriteString("\n\n")
	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.focus == focusChat {
		b.WriteString(m.help.ShortHelpView(m.keys.chatHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.listHelp()))
	}
	list := b.String()

	chat := m.chat.Snapshot()
	if !chat.Open() {
		return list
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, list, "  ", m.viewChat(chat))
}

func (m Model) viewUser(state tasklist.State) string {
	switch {
	case state.AuthLoading:
		return mutedStyle.Render("Checking login...")
	case state.User == nil:
		return mutedStyle.Render("Not signed in. Press L to log in.")
	default:
		return "Signed in as " + state.User.DisplayName()
	}
}

func (m Model) viewStats() string {
	s := m.stats.Stats()
	var body string
	switch {
	case m.stats.Loading() && s == nil:
		body = mutedStyle.Render("Loading statistics...")
	case s == nil:
		body = mutedStyle.Render("No statistics yet. Press s to fetch.")
	default:
		body = fmt.Sprintf("Total %d   Completed %d   Pending %d   Completion %d%%",
			s.TotalTasks, s.CompletedTasks, s.PendingTasks, s.CompletionPercentage)
	}
	return cardStyle.Render(body)
}

func (m Model) viewTasks(state tasklist.State) string {
	if state.Loading && len(state.Tasks) == 0 {
		return mutedStyle.Render("Loading tasks...")
	}
	if len(state.Tasks) == 0 {
		return mutedStyle.Render("No tasks yet. Press n to add one.")
	}

	lines := make([]string, 0, len(state.Tasks))
	for i, t := range state.Tasks {
		box := "[ ]"
		title := t.Title
		if t.Completed {
			box = "[x]"
			title = doneStyle.Render(title)
		}
		line := box + " " + title
		if i == m.cursor && m.focus == focusList {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewChat(chat chatpanel.State) string {
	width := 48
	if m.width > 0 {
		width = max(m.width/3, 32)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Task assistant"))
	b.WriteString("\n\n")

	switch chat.Status {
	case chatpanel.Loading:
		b.WriteString(mutedStyle.Render("Starting conversation..."))
	case chatpanel.Unauthenticated:
		b.WriteString(mutedStyle.Render("Log in to chat with the assistant."))
	case chatpanel.Failed:
		b.WriteString(errorStyle.Render(chat.Error))
	default:
		bubbles := chatpanel.Render(chat.Messages)
		if len(bubbles) == 0 {
			b.WriteString(mutedStyle.Render("Ask me to add, complete or remove tasks."))
		}
		for _, bubble := range bubbles {
			b.WriteString(renderBubble(bubble, width-4))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if chat.InputEnabled() || chat.Sending {
		b.WriteString(m.chatInput.View())
	} else {
		b.WriteString(mutedStyle.Render("(input disabled)"))
	}
	return chatStyle.Width(width).Render(b.String())
}

func renderBubble(bubble chatpanel.Bubble, width int) string {
	label := agentStyle.Render("Assistant")
	if bubble.Role == model.RoleUser {
		label = userStyle.Render("You")
	}
	text := bubble.Text
	if bubble.Thinking {
		text = mutedStyle.Render(text)
	}
	out := label + "\n" + lipgloss.NewStyle().Width(width).Render(text)
	if bubble.Tools != "" {
		out += "\n" + mutedStyle.Render("tools: "+bubble.Tools)
	}
	return out
}
