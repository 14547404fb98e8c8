package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pusher/pusher-http-go/v5"
)

// PusherConfig 保存 Pusher Channels 凭证。
type PusherConfig struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
	// Host 覆盖集群地址，为空时使用 Pusher API
	Host   string
	Secure bool
}

// PusherPublisher 在 Pusher Channels 上触发事件。
type PusherPublisher struct {
	client *pusher.Client
}

// NewPusherPublisher 创建客户端，首次触发前不会建立连接。
func NewPusherPublisher(cfg PusherConfig) (*PusherPublisher, error) {
	if cfg.AppID == "" || cfg.Key == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("pusher requires PUSHER_APP_ID, PUSHER_KEY and PUSHER_SECRET")
	}
	return &PusherPublisher{client: &pusher.Client{
		AppID:   cfg.AppID,
		Key:     cfg.Key,
		Secret:  cfg.Secret,
		Cluster: cfg.Cluster,
		Host:    cfg.Host,
		Secure:  cfg.Secure,
	}}, nil
}

func (p *PusherPublisher) Name() string { return "pusher" }

func (p *PusherPublisher) Publish(_ context.Context, channel, event string, payload json.RawMessage) error {
	if err := p.client.Trigger(channel, event, payload); err != nil {
		return fmt.Errorf("triggering pusher event: %w", err)
	}
	return nil
}

func (p *PusherPublisher) Close() error { return nil }
