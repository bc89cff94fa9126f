package model

import (
	"time"
)

// ClerkStatus 员工状态
type ClerkStatus string

const (
	ClerkAvailable ClerkStatus = "AVAILABLE"
	ClerkBusy      ClerkStatus = "BUSY"
	ClerkOffline   ClerkStatus = "OFFLINE"
)

// Customer 排队取号的客户（一张等待中的票）
type Customer struct {
	ID           int64     `json:"id"`
	TicketNumber string    `json:"ticketNumber"`
	ArrivalTime  time.Time `json:"arrivalTime"`
}

// Window 服务窗口
type Window struct {
	ID     int64 `json:"id"`
	Number int   `json:"number"`
}

// Clerk 窗口员工
type Clerk struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Username          string      `json:"username"`
	Password          string      `json:"password"`
	WindowID          *int64      `json:"windowId"`
	Status            ClerkStatus `json:"status"`
	CustomersServed   int         `json:"customersServed"`
	TotalServiceTime  float64     `json:"totalServiceTime"` // 累计服务秒数
	CurrentCustomerID *int64      `json:"currentCustomerId"`
}

// ServingInfo 员工与客户的临时服务配对，只在员工处于BUSY状态时存在。
// 不持久化：主节点每次重启后服务配对一律为空。
type ServingInfo struct {
	Clerk    Clerk    `json:"clerk"`
	Customer Customer `json:"customer"`
}

// QueueState 队列聚合状态，整体作为复制单元：
// 每次快照广播都携带完整聚合，从不发送增量。
type QueueState struct {
	Customers   []Customer    `json:"customers"`
	Windows     []Window      `json:"windows"`
	Clerks      []Clerk       `json:"clerks"`
	Serving     []ServingInfo `json:"serving"`
	NextTicket  int           `json:"nextTicket"`
	ServedCount int           `json:"servedCount"`
}

// Clone 深拷贝队列状态，避免快照与事件循环内部状态共享底层切片
func (s QueueState) Clone() QueueState {
	out := QueueState{
		Customers:   make([]Customer, len(s.Customers)),
		Windows:     make([]Window, len(s.Windows)),
		Clerks:      make([]Clerk, len(s.Clerks)),
		Serving:     make([]ServingInfo, len(s.Serving)),
		NextTicket:  s.NextTicket,
		ServedCount: s.ServedCount,
	}
	copy(out.Customers, s.Customers)
	copy(out.Windows, s.Windows)
	copy(out.Serving, s.Serving)
	for i, c := range s.Clerks {
		out.Clerks[i] = cloneClerk(c)
	}
	for i, sv := range s.Serving {
		out.Serving[i].Clerk = cloneClerk(sv.Clerk)
	}
	return out
}

func cloneClerk(c Clerk) Clerk {
	if c.WindowID != nil {
		w := *c.WindowID
		c.WindowID = &w
	}
	if c.CurrentCustomerID != nil {
		id := *c.CurrentCustomerID
		c.CurrentCustomerID = &id
	}
	return c
}

// EmptyState 空状态，从节点在收到首个快照前持有该状态
func EmptyState() QueueState {
	return QueueState{NextTicket: 101}
}

// SeedState 首次运行（持久化存储为空）时的种子数据
func SeedState() QueueState {
	state := EmptyState()
	for i := 1; i <= 5; i++ {
		state.Windows = append(state.Windows, Window{ID: int64(i), Number: i})
	}
	seed := []struct {
		id       int64
		name     string
		username string
	}{
		{1, "علي أحمد", "ali"},
		{2, "فاطمة خان", "fatima"},
		{3, "يوسف إبراهيم", "youssef"},
	}
	for _, c := range seed {
		state.Clerks = append(state.Clerks, Clerk{
			ID:       c.id,
			Name:     c.name,
			Username: c.username,
			Password: "password123",
			Status:   ClerkOffline,
		})
	}
	return state
}
