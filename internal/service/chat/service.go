package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/metrics"
	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

var ErrSessionRequired = errors.New("session id is required")

// turnNamespace 是确定性消息 ID 的命名空间。
var turnNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("loob:conversation-turn"))

// Store 是只追加的消息集合。Insert 必须按 Turn.ID 幂等，
// 并返回是否写入了新记录。
type Store interface {
	Insert(ctx context.Context, turn chat.Turn) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Close() error
}

// Service 封装对话消息的持久化。
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService 创建依赖存储后端的对话服务。
func NewService(store Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		logger:  logger.Named("store"),
		metrics: m,
		now:     time.Now,
	}
}

// TurnID 根据 sessionID 和 content 生成消息 ID，角色不参与计算。
func TurnID(sessionID, content string) string {
	return uuid.NewSHA1(turnNamespace, []byte(sessionID+"\x00"+content)).String()
}

// Save 记录一条消息，会话中已有相同内容时跳过。重复写入不是错误。
func (s *Service) Save(ctx context.Context, sessionID, content string, role chat.Role, analysis *chat.Analysis) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	turn := chat.Turn{
		ID:        TurnID(sessionID, content),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Length:    utf8.RuneCountInString(content),
		CreatedAt: s.now().UTC(),
	}
	if analysis != nil {
		turn.Mood = analysis.Mood
		turn.Keywords = append([]string{}, analysis.Keywords...)
	}

	inserted, err := s.store.Insert(ctx, turn)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	if !inserted {
		s.metrics.TurnDuplicate()
		s.logger.Info("message already exists, skipping save",
			zap.String("session_id", sessionID),
			zap.String("turn_id", turn.ID),
			zap.String("role", string(role)),
		)
		return nil
	}

	s.metrics.TurnSaved(string(role))
	s.logger.Debug("message saved",
		zap.String("session_id", sessionID),
		zap.String("turn_id", turn.ID),
		zap.String("role", string(role)),
		zap.Bool("analysis", turn.HasAnalysis()),
	)
	return nil
}

// Transcript 返回指定会话已保存的消息。
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	turns, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return turns, nil
}
