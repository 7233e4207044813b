package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"santa-go/internal/storage"
)

// redisKVStore 是 storage.KVStore 接口的 Redis 实现。
// 群组/邀请记录整体作为值写入，键方案由 storage 层拼好后传入。
type redisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore 创建一个基于 Redis 的 KVStore。
func NewRedisKVStore(client *redis.Client) storage.KVStore {
	return &redisKVStore{client: client}
}

// Get 读取键值。键不存在时返回 storage.ErrKeyNotFound。
func (r *redisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("从 Redis 读取 %s 失败: %w", key, err)
	}
	return val, nil
}

// Put 写入键值。记录不设 TTL，群组生命周期由服务层的状态机管理。
func (r *redisKVStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("写入 Redis 键 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 删除键。键本就不存在不算错误。
func (r *redisKVStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除 Redis 键 %s 失败: %w", key, err)
	}
	return nil
}
