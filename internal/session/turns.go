package session

import "strings"

// Turn is one user message paired with the assistant response(s) that
// followed it.
type Turn struct {
	UserText      string
	AssistantText string
	Timestamp     string
}

// BuildTurns pairs messages into turns. A user message opens a new turn;
// assistant messages append to the current one, separated by a blank line.
// Assistant messages arriving before any user message are dropped.
func BuildTurns(messages []Message) []Turn {
	var turns []Turn
	for i := range messages {
		m := &messages[i]
		text := m.Text()
		switch m.Role {
		case "user":
			turns = append(turns, Turn{UserText: text, Timestamp: m.Timestamp})
		case "assistant":
			if len(turns) == 0 {
				continue
			}
			cur := &turns[len(turns)-1]
			if cur.AssistantText == "" {
				cur.AssistantText = text
			} else if text != "" {
				cur.AssistantText += "\n\n" + text
			}
		}
	}
	return turns
}

// Render formats a turn for chunk text.
func (t Turn) Render() string {
	var b strings.Builder
	b.WriteString("User: ")
	b.WriteString(t.UserText)
	b.WriteString("\n\nAssistant: ")
	b.WriteString(t.AssistantText)
	return b.String()
}
