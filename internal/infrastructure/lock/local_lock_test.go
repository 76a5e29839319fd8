package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockMutualExclusion(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	// 两笔并发取款共抢同一把账户锁，临界区内的计数不允许交错
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := m.NewLock(AccountKey("A1"), "req")
			require.NoError(t, l.Lock(ctx, time.Millisecond, 100))
			defer l.Unlock(ctx)
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestLocalLockDifferentKeysIndependent(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	l1 := m.NewLock(AccountKey("A1"), "req")
	require.NoError(t, l1.Lock(ctx, time.Millisecond, 1))
	defer l1.Unlock(ctx)

	// 另一账户的锁不受影响
	l2 := m.NewLock(AccountKey("A2"), "req")
	require.NoError(t, l2.Lock(ctx, time.Millisecond, 1))
	l2.Unlock(ctx)
}

func TestSortAccountKeys(t *testing.T) {
	k1, k2 := SortAccountKeys("B", "A")
	r1, r2 := SortAccountKeys("A", "B")

	// 与转账方向无关，加锁顺序固定
	assert.Equal(t, k1, r1)
	assert.Equal(t, k2, r2)
	assert.Less(t, k1, k2)
}
