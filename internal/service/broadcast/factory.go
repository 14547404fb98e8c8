package broadcast

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/config"
	"github.com/IvaTomevska/loob-beta/internal/metrics"
)

// New 按配置的后端创建分发器。hub 用于 "hub" 后端，可与订阅处理器共享。
func New(cfg config.BroadcastConfig, hub *Hub, logger *zap.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	var publishers []Publisher
	closeAll := func() {
		for _, p := range publishers {
			_ = p.Close()
		}
	}

	for _, backend := range cfg.Backends {
		switch backend {
		case "hub":
			if hub == nil {
				hub = NewHub()
			}
			publishers = append(publishers, hub)
		case "nats":
			p, err := NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				closeAll()
				return nil, err
			}
			publishers = append(publishers, p)
		case "pusher":
			p, err := NewPusherPublisher(PusherConfig{
				AppID:   cfg.PusherAppID,
				Key:     cfg.PusherKey,
				Secret:  cfg.PusherSecret,
				Cluster: cfg.PusherCluster,
				Secure:  true,
			})
			if err != nil {
				closeAll()
				return nil, err
			}
			publishers = append(publishers, p)
		default:
			closeAll()
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
		}
	}

	if len(publishers) == 0 {
		return nil, errors.New("no broadcast backend configured")
	}
	return NewDispatcher(publishers, cfg.Retries, logger, m), nil
}
