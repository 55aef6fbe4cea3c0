package models

const (
	titleMaxRunes = 30
	titleEllipsis = "..."
)

type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// TitleFrom derives a conversation title from the first user utterance.
func TitleFrom(text string) string {
	r := []rune(text)
	if len(r) <= titleMaxRunes {
		return text
	}
	return string(r[:titleMaxRunes]) + titleEllipsis
}

// Clone returns a deep copy so callers can't alias store state.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Audio != nil {
			a := *m.Audio
			a.Data = append([]byte(nil), m.Audio.Data...)
			m.Audio = &a
		}
		out.Messages[i] = m
	}
	return out
}

func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
