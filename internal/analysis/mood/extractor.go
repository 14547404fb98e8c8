// Package mood 从助手的自由文本中定位并校验 mood/keywords 分析结果。
package mood

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

var (
	// ErrNoCandidate 表示文本中没有同时包含两个字段的完整对象
	ErrNoCandidate = errors.New("no analysis object found")
	// ErrInvalidPayload 表示找到了候选对象但未通过结构校验
	ErrInvalidPayload = errors.New("invalid analysis payload")
)

// Extractor 解析分析结果，零值可用且不输出日志。
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor 创建提取器，被丢弃的候选对象记录到 logger。
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract 返回文本中的分析结果，没有时返回 false。
// 不会向调用方返回错误，被拒绝的候选只记录日志。
func (e *Extractor) Extract(text string) (*chat.Analysis, bool) {
	analysis, err := Parse(text)
	if err != nil {
		if e != nil && e.logger != nil && !errors.Is(err, ErrNoCandidate) {
			e.logger.Info("discarding analysis payload", zap.Error(err))
		}
		return nil, false
	}
	return analysis, true
}

// Parse 扫描文本，返回第一个携带合法 mood/keywords 的完整对象。
func Parse(text string) (*chat.Analysis, error) {
	analysis, err := parseSpans(objectSpans(text))
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// parseSpans 依次尝试每个片段，片段本身不合法时再尝试其内部嵌套的对象。
func parseSpans(spans []string) (*chat.Analysis, error) {
	var lastErr error
	for _, span := range spans {
		if !strings.Contains(span, "mood") || !strings.Contains(span, "keywords") {
			continue
		}
		analysis, err := decode(span)
		if err == nil {
			return analysis, nil
		}
		lastErr = err
		if inner, innerErr := parseSpans(objectSpans(span[1 : len(span)-1])); innerErr == nil {
			return inner, nil
		} else if !errors.Is(innerErr, ErrNoCandidate) {
			lastErr = innerErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoCandidate
}

type payload struct {
	Mood     *string          `json:"mood"`
	Keywords *json.RawMessage `json:"keywords"`
}

func decode(span string) (*chat.Analysis, error) {
	var p payload
	if err := json.Unmarshal([]byte(span), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Mood == nil || strings.TrimSpace(*p.Mood) == "" {
		return nil, fmt.Errorf("%w: mood is missing", ErrInvalidPayload)
	}
	mood, ok := chat.ParseMood(*p.Mood)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mood %q", ErrInvalidPayload, *p.Mood)
	}
	if p.Keywords == nil {
		return nil, fmt.Errorf("%w: keywords is missing", ErrInvalidPayload)
	}
	raw := bytes.TrimSpace(*p.Keywords)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: keywords must be an array", ErrInvalidPayload)
	}
	keywords := make([]string, 0, 4)
	if err := json.Unmarshal(raw, &keywords); err != nil {
		return nil, fmt.Errorf("%w: keywords must be strings: %v", ErrInvalidPayload, err)
	}
	return &chat.Analysis{Mood: mood, Keywords: keywords}, nil
}

// objectSpans 按顺序返回所有最外层的 {...} 片段，忽略 JSON 字符串内的括号。
// 文本在未闭合的片段内结束时，从该片段左括号之后重新扫描，
// 避免正文里多余的括号或引号吞掉后面的对象。
func objectSpans(text string) []string {
	var (
		spans    []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if depth > 0 && inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		} else {
			switch c {
			case '"':
				if depth > 0 {
					inString = true
				}
			case '{':
				if depth == 0 {
					start = i
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
					if depth == 0 {
						spans = append(spans, text[start:i+1])
						start = -1
					}
				}
			}
		}

		if i == len(text)-1 && depth > 0 {
			i = start
			depth, start = 0, -1
			inString, escaped = false, false
		}
	}
	return spans
}
