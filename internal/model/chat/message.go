package chat

// Role 表示消息来源。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid 判断 r 是否为已知角色。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message 是客户端在对话请求中发送的单条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
