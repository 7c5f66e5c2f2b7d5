// Package tui implements the interactive terminal chat view for a running
// agent session: a scrolling transcript, a compose line, and inline
// approve/deny prompts for tool calls awaiting a decision.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/session"
	"github.com/mfateev/agentharness/internal/workflow"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	approvalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	youStyle      = lipgloss.NewStyle().Bold(true)
)

// Model is the Bubble Tea model driving one conversation session.
type Model struct {
	sess       *session.Session
	workflowID string
	render     func(string) (string, error)

	viewport viewport.Model
	input    textinput.Model
	ready    bool

	transcript []string
	pending    []workflow.PendingApproval
	phase      workflow.TurnPhase
	err        error
	quitting   bool
}

// New builds the initial Model for workflowID, driven over sess.
func New(sess *session.Session, workflowID string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message and press Enter..."
	ti.Focus()
	ti.CharLimit = 8000
	ti.Prompt = "> "

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	render := func(s string) (string, error) { return s, nil }
	if err == nil {
		render = renderer.Render
	}

	return Model{
		sess:       sess,
		workflowID: workflowID,
		render:     render,
		input:      ti,
	}
}

// Run starts the full-screen chat program and blocks until the user quits
// or the session ends.
func Run(sess *session.Session, workflowID string) error {
	p := tea.NewProgram(New(sess, workflowID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, pollCmd(m.sess))
}

// eventMsg carries the next event polled from the workflow's event sink.
type eventMsg struct {
	event     events.IndexedEvent
	compacted bool
}

// opErrMsg carries an error from submitting an operation or polling.
type opErrMsg struct{ err error }

func pollCmd(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		ev, compacted, ok, err := sess.NextEvent(context.Background())
		if err != nil {
			return opErrMsg{err}
		}
		if !ok {
			return nil
		}
		return eventMsg{event: ev, compacted: compacted}
	}
}

func submitCmd(sess *session.Session, op session.Op) tea.Cmd {
	return func() tea.Msg {
		if err := sess.Submit(context.Background(), op); err != nil {
			return opErrMsg{err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 3
		vpHeight := msg.Height - headerHeight - footerHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshViewport()
		return m, nil

	case opErrMsg:
		m.err = msg.err
		return m, nil

	case eventMsg:
		m.applyEvent(msg.event, msg.compacted)
		m.refreshViewport()
		if m.quitting {
			return m, tea.Quit
		}
		return m, pollCmd(m.sess)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if len(m.pending) > 0 {
		switch key {
		case "y":
			ids := approvalIDs(m.pending)
			m.pending = nil
			return m, submitCmd(m.sess, session.Op{Kind: session.OpApproval, Approval: workflow.ApprovalResponse{Approved: ids}})
		case "n", "esc":
			ids := approvalIDs(m.pending)
			m.pending = nil
			return m, submitCmd(m.sess, session.Op{Kind: session.OpApproval, Approval: workflow.ApprovalResponse{Denied: ids}})
		}
		return m, nil
	}

	switch key {
	case "ctrl+x":
		return m, submitCmd(m.sess, session.Op{Kind: session.OpCancel})
	case "ctrl+q":
		return m, submitCmd(m.sess, session.Op{Kind: session.OpShutdown, Reason: "user quit"})
	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.transcript = append(m.transcript, youStyle.Render("you: ")+content)
		m.refreshViewport()
		return m, submitCmd(m.sess, session.Op{Kind: session.OpUserInput, Content: content})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyEvent updates transcript/pending/phase state from one workflow
// event. Event.Payload arrives from the Temporal query as a generic
// interface{} (JSON-decoded into `any`, not the original struct), so every
// branch re-decodes it into the concrete payload type it expects.
func (m *Model) applyEvent(ev events.IndexedEvent, compacted bool) {
	if compacted {
		m.transcript = append(m.transcript, dimStyle.Render("--- older events were compacted away ---"))
	}

	switch ev.Event.Kind {
	case events.KindSessionConfigured:
		var p events.SessionConfiguredPayload
		decodePayload(ev.Event.Payload, &p)
		m.transcript = append(m.transcript, dimStyle.Render(fmt.Sprintf("session %s using %s", p.ConversationID, p.Model)))

	case events.KindTurnStarted:
		m.phase = workflow.PhaseLLMCalling

	case events.KindAgentMessage:
		var p events.AgentMessagePayload
		decodePayload(ev.Event.Payload, &p)
		rendered, err := m.render(p.Content)
		if err != nil {
			rendered = p.Content
		}
		m.transcript = append(m.transcript, strings.TrimRight(rendered, "\n"))

	case events.KindExecApprovalNeeded:
		var p events.ExecApprovalRequestPayload
		decodePayload(ev.Event.Payload, &p)
		m.pending = append(m.pending, workflow.PendingApproval{CallID: p.CallID, ToolName: p.ToolName, Reason: p.Reason})
		m.transcript = append(m.transcript, approvalStyle.Render(
			fmt.Sprintf("approval needed: %s %s   [y]es / [n]o", p.ToolName, p.Command)))

	case events.KindToolCallBegin:
		var p events.ToolCallBeginPayload
		decodePayload(ev.Event.Payload, &p)
		m.transcript = append(m.transcript, dimStyle.Render(fmt.Sprintf("$ %s", p.ToolName)))

	case events.KindToolCallEnd:
		var p events.ToolCallEndPayload
		decodePayload(ev.Event.Payload, &p)
		status := "ok"
		if !p.Success {
			status = "failed"
		}
		m.transcript = append(m.transcript, dimStyle.Render(fmt.Sprintf("  -> %s: %s", status, p.Summary)))

	case events.KindTurnComplete:
		m.phase = workflow.PhaseWaitingForInput

	case events.KindTurnAborted:
		var p events.TurnAbortedPayload
		decodePayload(ev.Event.Payload, &p)
		m.transcript = append(m.transcript, dimStyle.Render(fmt.Sprintf("turn aborted: %s", p.Reason)))
		m.phase = workflow.PhaseWaitingForInput

	case events.KindError:
		var p events.ErrorPayload
		decodePayload(ev.Event.Payload, &p)
		m.transcript = append(m.transcript, errorStyle.Render(fmt.Sprintf("error [%s]: %s", p.Type, p.Message)))

	case events.KindShutdown:
		m.transcript = append(m.transcript, dimStyle.Render("session shutdown"))
		m.quitting = true
	}
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return "session ended.\n"
	}
	if !m.ready {
		return "initializing...\n"
	}

	header := headerStyle.Render(fmt.Sprintf(" %s — %s ", m.workflowID, m.phase))
	if m.err != nil {
		header += " " + errorStyle.Render(m.err.Error())
	}

	help := dimStyle.Render("enter: send   y/n: approve/deny pending tool   ctrl+x: cancel turn   ctrl+q: shutdown   ctrl+c: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.input.View(), help)
}

func approvalIDs(pending []workflow.PendingApproval) []string {
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.CallID
	}
	return ids
}

// decodePayload re-marshals an untyped event payload into target. Ignoring
// the error is intentional here: a malformed payload just renders as a
// zero-value line rather than crashing the TUI.
func decodePayload(raw interface{}, target interface{}) {
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, target)
}
