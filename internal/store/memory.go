// Package store 提供只追加的消息持久化后端。
package store

import (
	"context"
	"sync"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// MemoryStore 在进程内存中保存消息，适用于开发和测试。
type MemoryStore struct {
	mu       sync.RWMutex
	turns    map[string]chat.Turn
	sessions map[string][]string
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:    make(map[string]chat.Turn),
		sessions: make(map[string][]string),
	}
}

// Insert 在不存在同 ID 记录时写入。
func (s *MemoryStore) Insert(_ context.Context, turn chat.Turn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.turns[turn.ID]; exists {
		return false, nil
	}

	turn.Keywords = append([]string(nil), turn.Keywords...)
	s.turns[turn.ID] = turn
	s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], turn.ID)
	return true, nil
}

// ListBySession 按写入顺序返回会话消息。
func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sessions[sessionID]
	turns := make([]chat.Turn, 0, len(ids))
	for _, id := range ids {
		turns = append(turns, s.turns[id])
	}
	return turns, nil
}

// Close 无操作。
func (s *MemoryStore) Close() error {
	return nil
}
