package lock

import (
	"context"
	"sync"
	"time"
)

// LocalManager 进程内锁，按 key 维度互斥。
// 单机部署与单元测试使用，不依赖 Redis；
// 多实例部署必须换成 RedisManager，进程内锁无法跨实例互斥
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalManager() *LocalManager {
	return &LocalManager{locks: make(map[string]*sync.Mutex)}
}

func (m *LocalManager) NewLock(key, owner string) Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return &localLock{mu: l}
}

type localLock struct {
	mu *sync.Mutex
}

func (l *localLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	acquired := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		// 后台 goroutine 拿到锁后立即归还，避免泄漏
		go func() {
			<-acquired
			l.mu.Unlock()
		}()
		return ctx.Err()
	}
}

func (l *localLock) Unlock(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}
