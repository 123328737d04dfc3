// Package console is the terminal chat front end of grv. It drives an
// intake session over the HTTP API with bubbletea.
package console

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/grievanced/internal/client"
)

// API is the subset of the grievanced client the console needs.
type API interface {
	StartSession(ctx context.Context) (*client.Session, error)
	Say(ctx context.Context, sessionID, text string) (*client.Result, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Speaker marks who said a transcript line.
type Speaker int

const (
	SpeakerBot Speaker = iota
	SpeakerUser
	SpeakerSystem
)

// Line is one transcript entry.
type Line struct {
	Speaker Speaker
	Text    string
}

const maxTranscript = 200

// Model is the bubbletea chat model.
type Model struct {
	api     API
	timeout time.Duration

	sessionID   string
	stage       string
	replies     []string
	transcript  []Line
	submittedID string

	input    textinput.Model
	spinner  spinner.Model
	waiting  bool
	err      error
	quitting bool
}

// NewModel creates a chat model against api. Each request gets timeout.
func NewModel(api API, timeout time.Duration) Model {
	in := textinput.New()
	in.Placeholder = "Type your reply, or /back, /skip, /exit"
	in.CharLimit = 4000
	in.Width = 72
	in.Prompt = "> "
	in.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = dimStyle

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Model{
		api:     api,
		timeout: timeout,
		input:   in,
		spinner: sp,
		waiting: true,
	}
}

// SessionID returns the active session, if any.
func (m Model) SessionID() string { return m.sessionID }

// SubmittedID returns the grievance identifier once the conversation is done.
func (m Model) SubmittedID() string { return m.submittedID }

// Transcript returns the conversation so far.
func (m Model) Transcript() []Line { return m.transcript }

type startedMsg struct{ session *client.Session }
type resultMsg struct{ result *client.Result }
type errMsg struct{ err error }
type endedMsg struct{}

// Init starts a session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		startSession(m.api, m.timeout),
	)
}

func startSession(api API, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sess, err := api.StartSession(ctx)
		if err != nil {
			return errMsg{err}
		}
		return startedMsg{sess}
	}
}

func say(api API, timeout time.Duration, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := api.Say(ctx, sessionID, text)
		if err != nil {
			return errMsg{err}
		}
		return resultMsg{res}
	}
}

func endSession(api API, timeout time.Duration, sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = api.EndSession(ctx, sessionID)
		return endedMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyTab:
			// Tab cycles through the quick replies.
			if len(m.replies) > 0 {
				m.input.SetValue(nextReply(m.replies, m.input.Value()))
				m.input.CursorEnd()
			}
			return m, nil
		}

	case startedMsg:
		m.waiting = false
		m.err = nil
		m.sessionID = msg.session.SessionID
		m.apply(msg.session.Result)
		return m, nil

	case resultMsg:
		m.waiting = false
		m.err = nil
		m.apply(msg.result)
		if m.finished() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case errMsg:
		m.waiting = false
		m.err = msg.err
		m.addLine(SpeakerSystem, msg.err.Error())
		return m, nil

	case endedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.waiting || text == "" {
		return m, nil
	}
	if m.sessionID == "" {
		// The session never started; Enter retries.
		m.waiting = true
		return m, startSession(m.api, m.timeout)
	}
	m.input.Reset()
	m.addLine(SpeakerUser, text)
	m.waiting = true
	return m, say(m.api, m.timeout, m.sessionID, text)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.sessionID == "" || m.finished() {
		return m, tea.Quit
	}
	return m, endSession(m.api, m.timeout, m.sessionID)
}

func (m *Model) apply(res *client.Result) {
	if res == nil {
		return
	}
	m.stage = res.Stage
	m.replies = res.Prompt.QuickReplies
	if res.Prompt.Text != "" {
		m.addLine(SpeakerBot, res.Prompt.Text)
	}
	if id, _, ok := res.Submitted(); ok {
		m.submittedID = id
	}
}

func (m *Model) addLine(who Speaker, text string) {
	m.transcript = append(m.transcript, Line{Speaker: who, Text: text})
	if len(m.transcript) > maxTranscript {
		m.transcript = m.transcript[len(m.transcript)-maxTranscript:]
	}
}

func (m Model) finished() bool {
	return m.stage == "done" || m.stage == "exited"
}

// nextReply returns the quick reply after current, wrapping around.
func nextReply(replies []string, current string) string {
	for i, r := range replies {
		if r == current {
			return replies[(i+1)%len(replies)]
		}
	}
	return replies[0]
}
