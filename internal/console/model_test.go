package console

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/grievanced/internal/client"
)

type fakeAPI struct {
	said    []string
	ended   []string
	next    *client.Result
	sayErr  error
	startID string
}

func (f *fakeAPI) StartSession(ctx context.Context) (*client.Session, error) {
	return &client.Session{
		SessionID: f.startID,
		Result: &client.Result{
			Stage:  "details",
			Prompt: client.Prompt{Text: "Please describe your grievance.", QuickReplies: []string{"done", "restart", "exit"}},
		},
	}, nil
}

func (f *fakeAPI) Say(ctx context.Context, sessionID, text string) (*client.Result, error) {
	f.said = append(f.said, text)
	if f.sayErr != nil {
		return nil, f.sayErr
	}
	return f.next, nil
}

func (f *fakeAPI) EndSession(ctx context.Context, sessionID string) error {
	f.ended = append(f.ended, sessionID)
	return nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

func started(t *testing.T, api *fakeAPI) Model {
	t.Helper()
	m := NewModel(api, time.Second)
	msg := startSession(api, time.Second)()
	m, _ = update(t, m, msg)
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestNewModel(t *testing.T) {
	m := NewModel(&fakeAPI{}, 0)
	assert.Equal(t, 30*time.Second, m.timeout)
	assert.True(t, m.waiting)
	assert.Empty(t, m.SessionID())
	assert.NotNil(t, m.Init())
}

func TestModel_StartShowsOpeningPrompt(t *testing.T) {
	m := started(t, &fakeAPI{startID: "s-1"})

	assert.Equal(t, "s-1", m.SessionID())
	assert.False(t, m.waiting)
	require.Len(t, m.Transcript(), 1)
	assert.Equal(t, SpeakerBot, m.Transcript()[0].Speaker)
	assert.Contains(t, m.View(), "Please describe your grievance.")
	assert.Contains(t, m.View(), "1/6 Details")
}

func TestModel_EnterSendsTurn(t *testing.T) {
	api := &fakeAPI{startID: "s-1", next: &client.Result{
		Stage:  "categories",
		Prompt: client.Prompt{Text: "I think this is about: Agriculture."},
	}}
	m := started(t, api)

	m = typeText(t, m, "The canal broke.")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.waiting)
	assert.Empty(t, m.input.Value())

	m, _ = update(t, m, cmd())
	assert.Equal(t, []string{"The canal broke."}, api.said)
	assert.Equal(t, "categories", m.stage)

	lines := m.Transcript()
	require.Len(t, lines, 3)
	assert.Equal(t, SpeakerUser, lines[1].Speaker)
	assert.Equal(t, "I think this is about: Agriculture.", lines[2].Text)
}

func TestModel_EnterIgnoredWhileWaitingOrEmpty(t *testing.T) {
	api := &fakeAPI{startID: "s-1"}
	m := started(t, api)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	m.waiting = true
	m = typeText(t, m, "hello")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, api.said)
}

func TestModel_TabCyclesQuickReplies(t *testing.T) {
	m := started(t, &fakeAPI{startID: "s-1"})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "done", m.input.Value())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "restart", m.input.Value())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "done", m.input.Value())
}

func TestModel_ErrorIsShownAndRecoverable(t *testing.T) {
	api := &fakeAPI{startID: "s-1", sayErr: errors.New("server returned status 500: internal error")}
	m := started(t, api)

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())

	assert.False(t, m.waiting)
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "internal error")
}

func TestModel_DoneQuitsWithIdentifier(t *testing.T) {
	api := &fakeAPI{startID: "s-1", next: &client.Result{
		Stage:   "done",
		Prompt:  client.Prompt{Text: "Your grievance was submitted."},
		Payload: json.RawMessage(`{"grievance_id":"GR-20250314-4F7K2Q","categories":["Agriculture"]}`),
	}}
	m := started(t, api)

	m = typeText(t, m, "yes")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd = update(t, m, cmd())
	require.NotNil(t, cmd)

	assert.True(t, m.quitting)
	assert.Equal(t, "GR-20250314-4F7K2Q", m.SubmittedID())
	assert.Contains(t, m.View(), "GR-20250314-4F7K2Q")
}

func TestModel_EscEndsSession(t *testing.T) {
	api := &fakeAPI{startID: "s-1"}
	m := started(t, api)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)

	msg := cmd()
	assert.IsType(t, endedMsg{}, msg)
	assert.Equal(t, []string{"s-1"}, api.ended)
	assert.Contains(t, m.View(), "Nothing was submitted")
}

func TestModel_EscBeforeStartJustQuits(t *testing.T) {
	api := &fakeAPI{}
	m := NewModel(api, time.Second)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Empty(t, api.ended)
}

func TestModel_TranscriptIsBounded(t *testing.T) {
	m := NewModel(&fakeAPI{}, time.Second)
	for i := 0; i < maxTranscript+25; i++ {
		m.addLine(SpeakerBot, "line")
	}
	assert.Len(t, m.Transcript(), maxTranscript)
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "4/6 Location", StageLabel("location"))
	assert.Equal(t, "Submitted", StageLabel("done"))
	assert.Equal(t, "custom", StageLabel("custom"))
}
