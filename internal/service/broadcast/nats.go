package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher 在主题 "<channel>.<event>" 上发布事件。
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher 连接到 url 指定的服务器。
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("loob-broadcast"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Subject 把频道/事件映射为 NATS 主题。
func Subject(channel, event string) string {
	return channel + "." + event
}

func (p *NATSPublisher) Publish(_ context.Context, channel, event string, payload json.RawMessage) error {
	if err := p.conn.Publish(Subject(channel, event), payload); err != nil {
		return fmt.Errorf("publishing to nats: %w", err)
	}
	return nil
}

// Close 刷新待发送消息并关闭连接。
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
