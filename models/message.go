package models

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Audio is a voice recording attached to a user message.
type Audio struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Audio   *Audio `json:"audio,omitempty"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func ModelPlaceholder() Message {
	return Message{Role: RoleModel}
}
