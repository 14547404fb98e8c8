package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// TurnModel 对应 conversation_turns 表的行。
type TurnModel struct {
	ID        string    `gorm:"primaryKey;size:36;column:id"`
	SessionID string    `gorm:"index:idx_turn_session;not null;column:session_id"`
	Role      string    `gorm:"size:20;not null;column:role"`
	Content   string    `gorm:"type:text;not null;column:content"`
	Length    int       `gorm:"not null;column:length"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
	Mood      *string   `gorm:"size:16;column:mood"`
	Keywords  []string  `gorm:"serializer:json;type:text;column:keywords"`
}

func (TurnModel) TableName() string {
	return "conversation_turns"
}

func toTurnModel(t chat.Turn) *TurnModel {
	m := &TurnModel{
		ID:        t.ID,
		SessionID: t.SessionID,
		Role:      string(t.Role),
		Content:   t.Content,
		Length:    t.Length,
		CreatedAt: t.CreatedAt,
	}
	if t.HasAnalysis() {
		mood := string(t.Mood)
		m.Mood = &mood
		m.Keywords = t.Keywords
	}
	return m
}

func (m *TurnModel) toDomain() chat.Turn {
	t := chat.Turn{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      chat.Role(m.Role),
		Content:   m.Content,
		Length:    m.Length,
		CreatedAt: m.CreatedAt,
	}
	if m.Mood != nil {
		t.Mood = chat.Mood(*m.Mood)
		t.Keywords = m.Keywords
	}
	return t
}

// GormStore 通过 gorm 持久化消息。
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres 连接 dsn 并迁移消息表。
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore 包装已有的 gorm 连接并迁移消息表。
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&TurnModel{}); err != nil {
		return nil, fmt.Errorf("migrate conversation_turns: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Insert 使用 ON CONFLICT (id) DO NOTHING 写入。
func (s *GormStore) Insert(ctx context.Context, turn chat.Turn) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(toTurnModel(turn))
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert turn: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListBySession 按时间先后返回会话消息。
func (s *GormStore) ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	var models []*TurnModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	turns := make([]chat.Turn, len(models))
	for i, m := range models {
		turns[i] = m.toDomain()
	}
	return turns, nil
}

// Close 释放底层连接池。
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
