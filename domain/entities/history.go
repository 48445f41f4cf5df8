package entities

// HistoryRole tags an entry of the history sent back to the backend
type HistoryRole string

const (
	HistoryRoleUser      HistoryRole = "user"
	HistoryRoleAssistant HistoryRole = "assistant"
)

// HistoryEntry is the wire projection of one message: no ids, no audio
type HistoryEntry struct {
	Role    HistoryRole `json:"role"`
	Content string      `json:"content"`
}

// ConversationHistory mirrors the message log, one entry per message in the same order
type ConversationHistory []HistoryEntry

// Append adds the projection of a message
func (h ConversationHistory) Append(m Message) ConversationHistory {
	role := HistoryRoleUser
	if m.Author == AuthorAssistant {
		role = HistoryRoleAssistant
	}
	return append(h, HistoryEntry{Role: role, Content: m.Text})
}

// Clone returns a copy that is safe to hand to another goroutine
func (h ConversationHistory) Clone() ConversationHistory {
	if h == nil {
		return nil
	}
	out := make(ConversationHistory, len(h))
	copy(out, h)
	return out
}
