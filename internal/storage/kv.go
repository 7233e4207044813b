package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound 表示 KV 存储中不存在该键。
var ErrKeyNotFound = errors.New("键不存在")

// KVStore 定义了群组/邀请持久化所依赖的键值存储接口。
// 假定单键读写是 read-after-write 一致的，但不提供跨键事务，
// 因此"读群组-改-写回"必须在服务层的同一临界区内完成。
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// memoryKVStore 是 KVStore 的进程内实现，用于测试和单机开发模式。
type memoryKVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKVStore 创建一个进程内的 KVStore。
func NewMemoryKVStore() KVStore {
	return &memoryKVStore{data: make(map[string][]byte)}
}

func (s *memoryKVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	// 返回副本，避免调用方改到内部状态。
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *memoryKVStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *memoryKVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
