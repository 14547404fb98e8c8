package chat

import "time"

// Turn 表示持久化的单条对话记录，写入后不再修改。
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Length    int       `json:"length"`
	CreatedAt time.Time `json:"createdAt"`
	Mood      Mood      `json:"mood,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
}

// HasAnalysis 判断该记录是否带有情绪/关键词分析。
func (t Turn) HasAnalysis() bool {
	return t.Mood != ""
}
