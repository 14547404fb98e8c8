package chat

// ChatRequest 是对话接口的请求体，历史由客户端维护并在每轮完整重发。
type ChatRequest struct {
	Messages         []Message `json:"messages"`
	UseRAG           bool      `json:"useRag"`
	LLM              string    `json:"llm,omitempty"`
	SimilarityMetric string    `json:"similarityMetric,omitempty"`
	SessionID        string    `json:"sessionId"`
}

// LatestContent 返回最后一条消息的内容，历史为空时返回 ""。
func (r ChatRequest) LatestContent() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}
