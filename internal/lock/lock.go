package lock

import (
	"time"
)

// Lock 分布式互斥锁接口，主节点选举的唯一仲裁点。
// 获取是非阻塞的：拿不到锁立即返回false，不等待不重试。
type Lock interface {
	// AcquireLock 尝试获取分布式锁
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(lockName string, ttl time.Duration) (bool, error)

	// RefreshLock 刷新锁的过期时间（租约续期，模拟进程退出即释放的语义）
	// 返回值：bool表示是否成功刷新锁，error表示刷新过程中的错误
	RefreshLock(lockName string, ttl time.Duration) (bool, error)

	// ReleaseLock 释放分布式锁
	ReleaseLock(lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks()

	// Close 关闭分布式锁客户端
	Close() error
}
