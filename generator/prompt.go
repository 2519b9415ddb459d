package generator

// Role 标识消息的作者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Prompt 表示发送给 LLM 的消息集合。
// User 非空时追加在 History 之后。
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message 是一条对话记录，创建后不要修改。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// messages 按顺序展开历史和 User，不含 System。
func (p Prompt) messages() []Message {
	msgs := make([]Message, 0, len(p.History)+1)
	for _, h := range p.History {
		if h.Role == "" {
			h.Role = RoleUser
		}
		msgs = append(msgs, h)
	}
	if p.User != "" {
		msgs = append(msgs, UserMessage(p.User))
	}
	return msgs
}
