package queue

import (
	"fmt"
	"sort"

	"github.com/aboodalmontad/Hajz/internal/model"
)

// Apply 队列状态机的纯规约函数。不做任何I/O，不读时钟，
// 前置条件不满足的动作原样返回输入状态（静默no-op），
// 以此保证重复消息和迟到消息天然幂等。
func Apply(state model.QueueState, action model.Action) model.QueueState {
	switch action.Type {
	case model.ActionTakeNumber:
		return takeNumber(state, action)
	case model.ActionCallNextCustomer:
		return callNextCustomer(state, action)
	case model.ActionFinishService:
		return finishService(state, action)
	case model.ActionSetClerkStatus:
		return setClerkStatus(state, action)
	case model.ActionAddClerk:
		return addClerk(state, action)
	case model.ActionRemoveClerk:
		return removeClerk(state, action)
	case model.ActionLogoutClerk:
		return logoutClerk(state, action)
	case model.ActionAddWindow:
		return addWindow(state, action)
	case model.ActionRemoveWindow:
		return removeWindow(state, action)
	}
	return state
}

// takeNumber 取号：追加新票并递增计数器。票号严格递增，永不复用。
func takeNumber(state model.QueueState, action model.Action) model.QueueState {
	next := state.Clone()
	customer := model.Customer{
		ID:           int64(next.NextTicket),
		TicketNumber: fmt.Sprintf("A-%d", next.NextTicket),
		ArrivalTime:  action.At,
	}
	next.Customers = append(next.Customers, customer)
	next.NextTicket++
	return next
}

// callNextCustomer 叫号：取出等待队列头部的票，员工转为BUSY并建立服务配对。
// 不设优先级，"下一位"永远是FIFO队头。
func callNextCustomer(state model.QueueState, action model.Action) model.QueueState {
	clerk := findClerk(state.Clerks, action.ClerkID)
	if clerk == nil || clerk.Status != model.ClerkAvailable || len(state.Customers) == 0 {
		return state
	}

	next := state.Clone()
	customer := next.Customers[0]
	next.Customers = next.Customers[1:]

	c := findClerk(next.Clerks, action.ClerkID)
	c.Status = model.ClerkBusy
	c.CurrentCustomerID = &customer.ID

	serving := next.Serving[:0]
	for _, s := range next.Serving {
		if s.Clerk.ID != action.ClerkID {
			serving = append(serving, s)
		}
	}
	next.Serving = append(serving, model.ServingInfo{Clerk: *c, Customer: customer})
	return next
}

// finishService 完成服务：服务时长从客户取号时刻起算
func finishService(state model.QueueState, action model.Action) model.QueueState {
	var served *model.Customer
	for i := range state.Serving {
		if state.Serving[i].Clerk.ID == action.ClerkID {
			served = &state.Serving[i].Customer
			break
		}
	}
	if served == nil {
		return state
	}

	elapsed := action.At.Sub(served.ArrivalTime).Seconds()

	next := state.Clone()
	c := findClerk(next.Clerks, action.ClerkID)
	c.Status = model.ClerkAvailable
	c.CurrentCustomerID = nil
	c.CustomersServed++
	c.TotalServiceTime += elapsed

	next.Serving = removeServing(next.Serving, action.ClerkID)
	next.ServedCount++
	return next
}

// setClerkStatus 无条件覆盖员工状态，不做业务校验（管理侧强制下线的逃生通道）
func setClerkStatus(state model.QueueState, action model.Action) model.QueueState {
	if findClerk(state.Clerks, action.ClerkID) == nil {
		return state
	}
	next := state.Clone()
	findClerk(next.Clerks, action.ClerkID).Status = action.Status
	return next
}

func addClerk(state model.QueueState, action model.Action) model.QueueState {
	next := state.Clone()
	var maxID int64
	for _, c := range next.Clerks {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	name := action.Name
	if name == "" {
		name = action.Username
	}
	next.Clerks = append(next.Clerks, model.Clerk{
		ID:       maxID + 1,
		Name:     name,
		Username: action.Username,
		Password: action.Password,
		Status:   model.ClerkOffline,
	})
	return next
}

// removeClerk 删除员工。若该员工正在服务，所服务的票放回等待队列头部，
// 避免静默丢票。
func removeClerk(state model.QueueState, action model.Action) model.QueueState {
	if findClerk(state.Clerks, action.ClerkID) == nil {
		return state
	}
	next := state.Clone()

	for _, s := range next.Serving {
		if s.Clerk.ID == action.ClerkID {
			next.Customers = append([]model.Customer{s.Customer}, next.Customers...)
			break
		}
	}
	next.Serving = removeServing(next.Serving, action.ClerkID)

	clerks := next.Clerks[:0]
	for _, c := range next.Clerks {
		if c.ID != action.ClerkID {
			clerks = append(clerks, c)
		}
	}
	next.Clerks = clerks
	return next
}

// logoutClerk 登出：清空窗口与当前客户，移除服务配对。
// 被打断的服务直接作废，不计入已服务数。
func logoutClerk(state model.QueueState, action model.Action) model.QueueState {
	if findClerk(state.Clerks, action.ClerkID) == nil {
		return state
	}
	next := state.Clone()
	c := findClerk(next.Clerks, action.ClerkID)
	c.WindowID = nil
	c.Status = model.ClerkOffline
	c.CurrentCustomerID = nil
	next.Serving = removeServing(next.Serving, action.ClerkID)
	return next
}

// addWindow 新增窗口，编号重复则no-op。窗口集合按编号有序。
func addWindow(state model.QueueState, action model.Action) model.QueueState {
	for _, w := range state.Windows {
		if w.Number == action.WindowNumber {
			return state
		}
	}
	next := state.Clone()
	var maxID int64
	for _, w := range next.Windows {
		if w.ID > maxID {
			maxID = w.ID
		}
	}
	next.Windows = append(next.Windows, model.Window{ID: maxID + 1, Number: action.WindowNumber})
	sort.Slice(next.Windows, func(i, j int) bool {
		return next.Windows[i].Number < next.Windows[j].Number
	})
	return next
}

// removeWindow 删除窗口，仍被员工引用时no-op
func removeWindow(state model.QueueState, action model.Action) model.QueueState {
	for _, c := range state.Clerks {
		if c.WindowID != nil && *c.WindowID == action.WindowID {
			return state
		}
	}
	next := state.Clone()
	windows := next.Windows[:0]
	for _, w := range next.Windows {
		if w.ID != action.WindowID {
			windows = append(windows, w)
		}
	}
	next.Windows = windows
	return next
}

// Login 登录校验与状态变更。与其余动作不同，登录需要同步返回
// 带类型的成功/失败结果，因此不走Apply而单独暴露。
func Login(state model.QueueState, username, password string, windowID int64) (model.QueueState, *model.Clerk, error) {
	var target *model.Clerk
	for i := range state.Clerks {
		if state.Clerks[i].Username == username && state.Clerks[i].Password == password {
			target = &state.Clerks[i]
			break
		}
	}
	if target == nil {
		return state, nil, model.ErrInvalidCredentials
	}
	if target.Status != model.ClerkOffline || target.WindowID != nil {
		return state, nil, model.ErrAlreadyLoggedIn
	}
	for _, c := range state.Clerks {
		if c.WindowID != nil && *c.WindowID == windowID {
			return state, nil, model.ErrWindowOccupied
		}
	}

	next := state.Clone()
	c := findClerk(next.Clerks, target.ID)
	c.WindowID = &windowID
	c.Status = model.ClerkAvailable
	logged := *c
	return next, &logged, nil
}

// ResetSessions 主节点加载持久化状态后的会话清理：
// 所有员工强制回到登出基线，服务配对清空。上一任主节点崩溃时
// 的进行中会话不得复活。
func ResetSessions(state model.QueueState) model.QueueState {
	next := state.Clone()
	for i := range next.Clerks {
		next.Clerks[i].Status = model.ClerkOffline
		next.Clerks[i].WindowID = nil
		next.Clerks[i].CurrentCustomerID = nil
	}
	next.Serving = nil
	return next
}

func findClerk(clerks []model.Clerk, id int64) *model.Clerk {
	for i := range clerks {
		if clerks[i].ID == id {
			return &clerks[i]
		}
	}
	return nil
}

func removeServing(serving []model.ServingInfo, clerkID int64) []model.ServingInfo {
	out := serving[:0]
	for _, s := range serving {
		if s.Clerk.ID != clerkID {
			out = append(out, s)
		}
	}
	return out
}
