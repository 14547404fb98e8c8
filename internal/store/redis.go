package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// RedisStore 用独立的键保存每条消息，并为每个会话维护有序 ID 列表。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 校验连接并包装 client。
func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func turnKey(id string) string {
	return fmt.Sprintf("turn:%s", id)
}

func sessionTurnsKey(sessionID string) string {
	return fmt.Sprintf("session_turns:%s", sessionID)
}

// insertTurnScript 先追加 ID 再写入消息，RPUSH 失败时不会留下已占用的键。
// 脚本以原子方式执行。
var insertTurnScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// Insert 一步完成消息写入和会话列表追加，消息键已存在时视为重复。
func (r *RedisStore) Insert(ctx context.Context, turn chat.Turn) (bool, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return false, err
	}

	keys := []string{turnKey(turn.ID), sessionTurnsKey(turn.SessionID)}
	created, err := insertTurnScript.Run(ctx, r.client, keys, data, turn.ID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to insert turn: %w", err)
	}
	return created == 1, nil
}

// ListBySession 按写入顺序返回会话消息。
func (r *RedisStore) ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	ids, err := r.client.LRange(ctx, sessionTurnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	if len(ids) == 0 {
		return []chat.Turn{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = turnKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}

	turns := make([]chat.Turn, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var turn chat.Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Close 关闭 redis 客户端。
func (r *RedisStore) Close() error {
	return r.client.Close()
}
