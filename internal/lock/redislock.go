package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aboodalmontad/Hajz/config"
)

// 用Lua脚本释放/续期，确保只操作自己持有的锁
const (
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	refreshScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// RedisLock 基于单个Redis节点SetNX的互斥锁
type RedisLock struct {
	client *redis.Client
	ctx    context.Context
	tokens map[string]string // key是锁名，value是token值
}

// NewRedisLock 创建Redis锁客户端
func NewRedisLock() (*RedisLock, error) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.Address,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis锁节点连接测试失败: %w", err)
	}

	return &RedisLock{
		client: client,
		ctx:    ctx,
		tokens: make(map[string]string),
	}, nil
}

// AcquireLock 单次SetNX尝试，不重试。锁带TTL，持有方须周期性续期，
// 进程死亡后锁随TTL过期，新进程才可能当选。
func (r *RedisLock) AcquireLock(lockName string, ttl time.Duration) (bool, error) {
	token := fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Unix())

	ok, err := r.client.SetNX(r.ctx, lockName, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁 %s 失败: %w", lockName, err)
	}
	if !ok {
		return false, nil
	}

	r.tokens[lockName] = token
	log.Printf("获取锁 %s 成功，Token: %s", lockName, token)
	return true, nil
}

// RefreshLock 刷新锁的过期时间
func (r *RedisLock) RefreshLock(lockName string, ttl time.Duration) (bool, error) {
	token, exists := r.tokens[lockName]
	if !exists {
		return false, fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	result, err := r.client.Eval(r.ctx, refreshScript, []string{lockName}, token, int(ttl/time.Millisecond)).Result()
	if err != nil {
		return false, fmt.Errorf("刷新锁 %s 失败: %w", lockName, err)
	}

	if result.(int64) != 1 {
		// 锁已被他人持有或已过期
		delete(r.tokens, lockName)
		return false, nil
	}
	return true, nil
}

// ReleaseLock 释放分布式锁
func (r *RedisLock) ReleaseLock(lockName string) error {
	token, exists := r.tokens[lockName]
	if !exists {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	if _, err := r.client.Eval(r.ctx, releaseScript, []string{lockName}, token).Result(); err != nil {
		return fmt.Errorf("释放锁 %s 失败: %w", lockName, err)
	}
	delete(r.tokens, lockName)
	log.Printf("释放锁 %s 成功", lockName)
	return nil
}

// ReleaseAllLocks 释放所有持有的锁
func (r *RedisLock) ReleaseAllLocks() {
	for name := range r.tokens {
		if err := r.ReleaseLock(name); err != nil {
			log.Printf("释放锁 %s 失败: %v", name, err)
		}
	}
}

// Close 关闭分布式锁客户端
func (r *RedisLock) Close() error {
	r.ReleaseAllLocks()
	return r.client.Close()
}
