package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/logging"
	"github.com/IvaTomevska/loob-beta/internal/metrics"
)

// Dispatcher 在独立 goroutine 上发布事件，调用方不会等待广播后端。
// 每个发布者最多重试一次，仍失败的事件写入死信日志。
type Dispatcher struct {
	publishers []Publisher
	retries    int
	logger     *zap.Logger
	metrics    *metrics.Metrics
	pending    sync.WaitGroup
}

// NewDispatcher 把事件分发给 publishers，retries 限制在 0..1。
func NewDispatcher(publishers []Publisher, retries int, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}
	logger = logging.OrNop(logger)
	return &Dispatcher{
		publishers: publishers,
		retries:    retries,
		logger:     logger.Named("broadcast"),
		metrics:    m,
	}
}

// Publish 编码 payload 并调度到每个发布者。只返回编码错误，投递结果只记录日志。
func (d *Dispatcher) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding broadcast payload: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	for _, p := range d.publishers {
		d.pending.Add(1)
		go func(p Publisher) {
			defer d.pending.Done()
			d.deliver(ctx, p, channel, event, data)
		}(p)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, p Publisher, channel, event string, data json.RawMessage) {
	logger := d.logger.With(
		zap.String("backend", p.Name()),
		zap.String("channel", channel),
		zap.String("event", event),
	)

	var errs []error
	for attempt := 0; attempt <= d.retries; attempt++ {
		err := p.Publish(ctx, channel, event, data)
		d.metrics.Broadcast(p.Name(), err)
		if err == nil {
			logger.Info("event triggered", zap.Int("attempt", attempt+1))
			return
		}
		errs = append(errs, err)
		logger.Warn("error triggering event", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	logger.Error("dead letter",
		zap.ByteString("payload", data),
		zap.Error(errors.Join(errs...)),
	)
}

// Wait 阻塞直到所有已调度的投递完成。
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// CloseTimeout 限制 Close 等待未完成投递的时长。
const CloseTimeout = 5 * time.Second

// Close 最多等待 CloseTimeout，然后关闭所有发布者。
func (d *Dispatcher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()
	return d.Shutdown(ctx)
}

// Shutdown 在 ctx 结束前等待未完成的投递，然后关闭所有发布者。
// ctx 结束时仍在运行的投递将被放弃。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	var errs []error
	if err := d.waitContext(ctx); err != nil {
		d.logger.Warn("closing with deliveries still pending", zap.Error(err))
		errs = append(errs, fmt.Errorf("draining deliveries: %w", err))
	}
	for _, p := range d.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) waitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	select {
	case <-done:
		return nil
	default:
		return ctx.Err()
	}
}
