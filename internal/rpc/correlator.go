package rpc

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aboodalmontad/Hajz/internal/model"
)

// Correlator 在异步广播总线之上叠加同步请求/响应语义。
// 等待方注册一个关联ID换取结果通道，任何节点观察到匹配的
// 响应消息即可完成该条目。成功与超时都会移除条目，不残留等待者。
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan model.LoginResult
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]chan model.LoginResult),
	}
}

// Register 生成新的关联ID并登记待决条目
func (c *Correlator) Register() (string, <-chan model.LoginResult) {
	id := uuid.NewString()
	ch := make(chan model.LoginResult, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	return id, ch
}

// Resolve 按关联ID完成待决条目。未知ID（他人的请求或已超时的
// 请求）直接忽略，返回false。
func (c *Correlator) Resolve(correlationID string, result model.LoginResult) bool {
	c.mu.Lock()
	ch, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- result
	return true
}

// Wait 阻塞等待结果，超时返回ErrLoginTimeout并移除条目
func (c *Correlator) Wait(correlationID string, ch <-chan model.LoginResult, timeout time.Duration) (*model.Clerk, error) {
	select {
	case result := <-ch:
		return result.Clerk, result.Err
	case <-time.After(timeout):
		c.remove(correlationID)
		// 移除与响应到达存在竞争：若响应恰好已写入通道，以响应为准
		select {
		case result := <-ch:
			return result.Clerk, result.Err
		default:
		}
		return nil, model.ErrLoginTimeout
	}
}

// PendingCount 当前待决条目数
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}
