package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// visibleLines bounds how much transcript is drawn.
const visibleLines = 14

// View renders the chat.
func (m Model) View() string {
	if m.quitting {
		return m.farewell()
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(" Grievance intake "))
	if m.stage != "" {
		b.WriteString("  " + stageStyle.Render(StageLabel(m.stage)))
	}
	b.WriteString("\n\n")

	lines := m.transcript
	if len(lines) > visibleLines {
		lines = lines[len(lines)-visibleLines:]
	}
	for _, l := range lines {
		b.WriteString(renderLine(l))
		b.WriteString("\n")
	}

	if m.waiting {
		b.WriteString(m.spinner.View() + dimStyle.Render(" waiting for the server") + "\n")
	}

	if len(m.replies) > 0 {
		chips := make([]string, len(m.replies))
		for i, r := range m.replies {
			chips[i] = replyStyle.Render(r)
		}
		b.WriteString("\n" + strings.Join(chips, " ") + "\n")
	}

	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(dimStyle.Render("[enter] send  [tab] quick reply  [esc] exit"))
	return containerStyle.Render(b.String())
}

func (m Model) farewell() string {
	switch {
	case m.submittedID != "":
		return successStyle.Render(fmt.Sprintf("Submitted as %s", m.submittedID)) + "\n" +
			dimStyle.Render("Track it with: grv status "+m.submittedID) + "\n"
	case m.stage == "exited" || m.sessionID != "":
		return dimStyle.Render("Conversation closed. Nothing was submitted.") + "\n"
	}
	return ""
}

func renderLine(l Line) string {
	switch l.Speaker {
	case SpeakerUser:
		return userStyle.Render("you  ") + l.Text
	case SpeakerSystem:
		return errorStyle.Render("⚠ " + l.Text)
	default:
		return dimStyle.Render("bot  ") + botStyle.Render(l.Text)
	}
}

// StageLabel is the human label of a stage.
func StageLabel(stage string) string {
	switch stage {
	case "details":
		return "1/6 Details"
	case "categories":
		return "2/6 Categories"
	case "summary":
		return "3/6 Summary"
	case "location":
		return "4/6 Location"
	case "contact":
		return "5/6 Contact"
	case "otp":
		return "5/6 Verify phone"
	case "submit":
		return "6/6 Submit"
	case "done":
		return "Submitted"
	case "exited":
		return "Closed"
	}
	return stage
}
