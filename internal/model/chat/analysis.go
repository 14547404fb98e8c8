package chat

import "strings"

// Mood 是助手输出分析得到的情绪标签。
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
	MoodNeutral  Mood = "neutral"
)

// ParseMood 将原始值规范化为已知情绪。
func ParseMood(raw string) (Mood, bool) {
	switch m := Mood(strings.ToLower(strings.TrimSpace(raw))); m {
	case MoodPositive, MoodNegative, MoodNeutral:
		return m, true
	default:
		return "", false
	}
}

// Analysis 是从助手文本中提取的 mood/keywords 结果。
// 序列化时字段名首字母大写，供看板使用。
type Analysis struct {
	Mood     Mood     `json:"Mood"`
	Keywords []string `json:"Keywords"`
}

// AnalysisEvent 是发布到实时频道的负载。
type AnalysisEvent struct {
	Analysis Analysis `json:"analysis"`
}

// RetrievedDocument 表示一次相似度检索命中，只在单个请求内有效。
type RetrievedDocument struct {
	Content string  `json:"content"`
	Rank    int     `json:"rank"`
	Score   float32 `json:"score"`
}
