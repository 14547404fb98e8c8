// Package broadcast 把分析事件推送给实时订阅者。
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnknownBackend 表示无法识别的 BROADCAST_BACKENDS 配置项。
var ErrUnknownBackend = errors.New("unknown broadcast backend")

// Publisher 在指定频道上发出单个事件。
type Publisher interface {
	Name() string
	Publish(ctx context.Context, channel, event string, payload json.RawMessage) error
	Close() error
}
