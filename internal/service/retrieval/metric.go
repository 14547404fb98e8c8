package retrieval

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidMetric 表示度量标识无法用作集合名。
var ErrInvalidMetric = errors.New("invalid similarity metric")

// DefaultMetric 在请求未指定度量时使用。
const DefaultMetric = "cosine"

var metricPattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// NormalizeMetric 将 metric 转为小写并检查是否为安全标识。
func NormalizeMetric(metric string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(metric))
	if m == "" {
		return DefaultMetric, nil
	}
	if !metricPattern.MatchString(m) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
	return m, nil
}

// CollectionName 返回 metric 对应的向量集合名。
func CollectionName(metric string) (string, error) {
	m, err := NormalizeMetric(metric)
	if err != nil {
		return "", err
	}
	return "chat_" + m, nil
}
