package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/aboodalmontad/Hajz/internal/model"
)

func stateWithClerks(n int) model.QueueState {
	state := model.EmptyState()
	for i := 1; i <= n; i++ {
		wid := int64(i)
		state.Windows = append(state.Windows, model.Window{ID: wid, Number: i})
		state.Clerks = append(state.Clerks, model.Clerk{
			ID:       int64(i),
			Name:     fmt.Sprintf("clerk-%d", i),
			Username: fmt.Sprintf("user%d", i),
			Password: "password123",
			WindowID: &wid,
			Status:   model.ClerkAvailable,
		})
	}
	return state
}

func TestTakeNumberSequence(t *testing.T) {
	state := model.EmptyState()
	now := time.Now()

	var numbers []string
	for i := 0; i < 5; i++ {
		state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
		numbers = append(numbers, state.Customers[len(state.Customers)-1].TicketNumber)
	}

	want := []string{"A-101", "A-102", "A-103", "A-104", "A-105"}
	for i, n := range numbers {
		if n != want[i] {
			t.Errorf("第%d张票号 = %s, 期望 %s", i+1, n, want[i])
		}
	}
	if state.NextTicket != 106 {
		t.Errorf("NextTicket = %d, 期望 106", state.NextTicket)
	}
}

func TestTakeNumberMonotonic(t *testing.T) {
	state := stateWithClerks(1)
	now := time.Now()

	// 取号、叫号、完成交错进行，票号仍须严格递增且不复用
	seen := make(map[string]bool)
	var last int
	for i := 0; i < 10; i++ {
		state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
		issued := state.Customers[len(state.Customers)-1].TicketNumber
		if seen[issued] {
			t.Fatalf("票号 %s 被复用", issued)
		}
		seen[issued] = true

		var n int
		fmt.Sscanf(issued, "A-%d", &n)
		if n <= last {
			t.Fatalf("票号未严格递增: %d 在 %d 之后", n, last)
		}
		last = n

		if i%3 == 0 {
			state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})
			state = Apply(state, model.Action{Type: model.ActionFinishService, ClerkID: 1, At: now})
		}
	}
}

func TestCallNextFIFO(t *testing.T) {
	state := stateWithClerks(3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now.Add(time.Duration(i) * time.Second)})
	}

	want := []string{"A-101", "A-102", "A-103"}
	for i := 0; i < 3; i++ {
		state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: int64(i + 1), At: now})
		got := state.Serving[len(state.Serving)-1].Customer.TicketNumber
		if got != want[i] {
			t.Errorf("第%d次叫号得到 %s, 期望 %s", i+1, got, want[i])
		}
	}
	if len(state.Customers) != 0 {
		t.Errorf("等待队列剩余 %d, 期望 0", len(state.Customers))
	}
}

func TestCallNextPreconditions(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		setup func() model.QueueState
	}{
		{"员工不存在", func() model.QueueState {
			s := model.EmptyState()
			return Apply(s, model.Action{Type: model.ActionTakeNumber, At: now})
		}},
		{"等待队列为空", func() model.QueueState {
			return stateWithClerks(1)
		}},
		{"员工非空闲", func() model.QueueState {
			s := stateWithClerks(1)
			s.Clerks[0].Status = model.ClerkBusy
			return Apply(s, model.Action{Type: model.ActionTakeNumber, At: now})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.setup()
			after := Apply(before, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})
			if len(after.Serving) != len(before.Serving) {
				t.Errorf("前置条件不满足时产生了服务配对")
			}
			if len(after.Customers) != len(before.Customers) {
				t.Errorf("前置条件不满足时等待队列被修改")
			}
		})
	}
}

func TestBusyClerkHasExactlyOneAssignment(t *testing.T) {
	state := stateWithClerks(2)
	now := time.Now()

	for i := 0; i < 4; i++ {
		state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	}
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 2, At: now})

	checkInvariant := func(s model.QueueState) {
		t.Helper()
		for _, c := range s.Clerks {
			n := 0
			for _, sv := range s.Serving {
				if sv.Clerk.ID == c.ID {
					n++
				}
			}
			if c.Status == model.ClerkBusy && n != 1 {
				t.Errorf("BUSY员工 %d 的服务配对数 = %d, 期望 1", c.ID, n)
			}
			if c.Status == model.ClerkAvailable && c.CurrentCustomerID != nil {
				t.Errorf("AVAILABLE员工 %d 仍引用客户", c.ID)
			}
			if c.Status != model.ClerkBusy && n != 0 {
				t.Errorf("非BUSY员工 %d 存在 %d 条服务配对", c.ID, n)
			}
		}
	}

	checkInvariant(state)
	state = Apply(state, model.Action{Type: model.ActionFinishService, ClerkID: 1, At: now})
	checkInvariant(state)
	state = Apply(state, model.Action{Type: model.ActionLogoutClerk, ClerkID: 2, At: now})
	checkInvariant(state)
}

func TestEndToEndScenario(t *testing.T) {
	// 规约完整场景：空状态 -> 取号两次 -> 叫号 -> 完成服务
	state := stateWithClerks(1)
	arrival := time.Now().Add(-30 * time.Second)

	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: arrival})
	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: arrival})

	if state.Customers[0].TicketNumber != "A-101" || state.Customers[1].TicketNumber != "A-102" {
		t.Fatalf("取号结果 = %s, %s, 期望 A-101, A-102",
			state.Customers[0].TicketNumber, state.Customers[1].TicketNumber)
	}

	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: time.Now()})

	clerk := state.Clerks[0]
	if clerk.Status != model.ClerkBusy {
		t.Errorf("叫号后员工状态 = %s, 期望 BUSY", clerk.Status)
	}
	if clerk.CurrentCustomerID == nil {
		t.Fatal("叫号后员工未引用客户")
	}
	if state.Serving[0].Customer.TicketNumber != "A-101" {
		t.Errorf("服务中票号 = %s, 期望 A-101", state.Serving[0].Customer.TicketNumber)
	}

	finishAt := time.Now()
	state = Apply(state, model.Action{Type: model.ActionFinishService, ClerkID: 1, At: finishAt})

	clerk = state.Clerks[0]
	if clerk.Status != model.ClerkAvailable {
		t.Errorf("完成后员工状态 = %s, 期望 AVAILABLE", clerk.Status)
	}
	if clerk.CustomersServed != 1 {
		t.Errorf("CustomersServed = %d, 期望 1", clerk.CustomersServed)
	}
	if clerk.TotalServiceTime < 29 {
		t.Errorf("TotalServiceTime = %.2f, 期望约30秒", clerk.TotalServiceTime)
	}
	if state.ServedCount != 1 {
		t.Errorf("ServedCount = %d, 期望 1", state.ServedCount)
	}
	if len(state.Customers) != 1 || state.Customers[0].TicketNumber != "A-102" {
		t.Errorf("等待队列 = %v, 期望只剩 A-102", state.Customers)
	}
}

func TestFinishServiceWithoutAssignmentIsNoop(t *testing.T) {
	state := stateWithClerks(1)
	after := Apply(state, model.Action{Type: model.ActionFinishService, ClerkID: 1, At: time.Now()})
	if after.ServedCount != 0 || after.Clerks[0].CustomersServed != 0 {
		t.Error("无服务配对时完成服务应为no-op")
	}
}

func TestSetClerkStatusUnconditional(t *testing.T) {
	state := stateWithClerks(1)
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})

	// BUSY员工也可被强制下线，无业务校验
	state = Apply(state, model.Action{Type: model.ActionSetClerkStatus, ClerkID: 1, Status: model.ClerkOffline, At: now})
	if state.Clerks[0].Status != model.ClerkOffline {
		t.Errorf("状态 = %s, 期望 OFFLINE", state.Clerks[0].Status)
	}

	// 不存在的员工为no-op
	after := Apply(state, model.Action{Type: model.ActionSetClerkStatus, ClerkID: 99, Status: model.ClerkBusy, At: now})
	for i := range after.Clerks {
		if after.Clerks[i].Status != state.Clerks[i].Status {
			t.Error("不存在的员工ID修改了状态")
		}
	}
}

func TestLogin(t *testing.T) {
	base := model.SeedState()

	t.Run("成功登录", func(t *testing.T) {
		next, clerk, err := Login(base, "ali", "password123", 2)
		if err != nil {
			t.Fatalf("登录失败: %v", err)
		}
		if clerk.Status != model.ClerkAvailable || clerk.WindowID == nil || *clerk.WindowID != 2 {
			t.Errorf("登录后员工 = %+v", clerk)
		}
		if next.Clerks[0].Status != model.ClerkAvailable {
			t.Error("状态中的员工未更新")
		}
	})

	t.Run("凭证错误", func(t *testing.T) {
		_, _, err := Login(base, "ali", "wrong", 1)
		if err != model.ErrInvalidCredentials {
			t.Errorf("err = %v, 期望 ErrInvalidCredentials", err)
		}
	})

	t.Run("重复登录", func(t *testing.T) {
		next, _, err := Login(base, "ali", "password123", 1)
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = Login(next, "ali", "password123", 2)
		if err != model.ErrAlreadyLoggedIn {
			t.Errorf("err = %v, 期望 ErrAlreadyLoggedIn", err)
		}
	})

	t.Run("窗口被占用", func(t *testing.T) {
		next, _, err := Login(base, "ali", "password123", 1)
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = Login(next, "fatima", "password123", 1)
		if err != model.ErrWindowOccupied {
			t.Errorf("err = %v, 期望 ErrWindowOccupied", err)
		}
	})

	t.Run("失败时状态不变", func(t *testing.T) {
		next, _, _ := Login(base, "ali", "wrong", 1)
		if len(next.Clerks) != len(base.Clerks) {
			t.Error("登录失败修改了状态")
		}
		for i := range next.Clerks {
			if next.Clerks[i].Status != base.Clerks[i].Status {
				t.Error("登录失败修改了员工状态")
			}
		}
	})
}

func TestLogoutAbandonsService(t *testing.T) {
	state := stateWithClerks(1)
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})
	state = Apply(state, model.Action{Type: model.ActionLogoutClerk, ClerkID: 1, At: now})

	clerk := state.Clerks[0]
	if clerk.Status != model.ClerkOffline || clerk.WindowID != nil || clerk.CurrentCustomerID != nil {
		t.Errorf("登出后员工 = %+v", clerk)
	}
	if len(state.Serving) != 0 {
		t.Error("登出后服务配对未清除")
	}
	// 被打断的服务不计入已服务数，票也不回到等待队列
	if clerk.CustomersServed != 0 || state.ServedCount != 0 {
		t.Error("被打断的服务不应计入已服务数")
	}
	if len(state.Customers) != 0 {
		t.Error("登出作废的票不应回到等待队列")
	}
}

func TestRemoveClerkRequeuesServedTicket(t *testing.T) {
	state := stateWithClerks(2)
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})

	state = Apply(state, model.Action{Type: model.ActionRemoveClerk, ClerkID: 1, At: now})

	if len(state.Clerks) != 1 {
		t.Fatalf("员工数 = %d, 期望 1", len(state.Clerks))
	}
	// 被服务中的票回到等待队列头部
	if len(state.Customers) != 2 || state.Customers[0].TicketNumber != "A-101" {
		t.Errorf("等待队列 = %v, 期望 A-101 在队头", state.Customers)
	}
	if len(state.Serving) != 0 {
		t.Error("删除员工后服务配对未清除")
	}
}

func TestAddRemoveWindow(t *testing.T) {
	state := model.EmptyState()
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionAddWindow, WindowNumber: 3, At: now})
	state = Apply(state, model.Action{Type: model.ActionAddWindow, WindowNumber: 1, At: now})

	// 窗口集合按编号有序
	if state.Windows[0].Number != 1 || state.Windows[1].Number != 3 {
		t.Errorf("窗口顺序 = %v", state.Windows)
	}

	// 编号重复为no-op
	after := Apply(state, model.Action{Type: model.ActionAddWindow, WindowNumber: 3, At: now})
	if len(after.Windows) != 2 {
		t.Errorf("重复编号新增了窗口: %v", after.Windows)
	}

	// 被员工引用的窗口不可删除
	wid := state.Windows[0].ID
	state.Clerks = append(state.Clerks, model.Clerk{ID: 1, WindowID: &wid, Status: model.ClerkAvailable})
	after = Apply(state, model.Action{Type: model.ActionRemoveWindow, WindowID: wid, At: now})
	if len(after.Windows) != 2 {
		t.Error("被引用的窗口被删除了")
	}

	// 未被引用的窗口正常删除
	other := state.Windows[1].ID
	after = Apply(state, model.Action{Type: model.ActionRemoveWindow, WindowID: other, At: now})
	if len(after.Windows) != 1 {
		t.Error("未被引用的窗口未被删除")
	}
}

func TestAddClerkAssignsUniqueIDs(t *testing.T) {
	state := model.SeedState()
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionAddClerk, Username: "omar", Password: "pw", At: now})
	state = Apply(state, model.Action{Type: model.ActionAddClerk, Username: "sara", Password: "pw", At: now})

	ids := make(map[int64]bool)
	for _, c := range state.Clerks {
		if ids[c.ID] {
			t.Fatalf("员工ID %d 重复", c.ID)
		}
		ids[c.ID] = true
	}
	added := state.Clerks[len(state.Clerks)-1]
	if added.Username != "sara" || added.Status != model.ClerkOffline {
		t.Errorf("新增员工 = %+v", added)
	}
}

func TestResetSessions(t *testing.T) {
	state := stateWithClerks(2)
	now := time.Now()

	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})
	state = Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})

	reset := ResetSessions(state)

	for _, c := range reset.Clerks {
		if c.Status != model.ClerkOffline || c.WindowID != nil || c.CurrentCustomerID != nil {
			t.Errorf("重置后员工 %d = %+v", c.ID, c)
		}
	}
	if len(reset.Serving) != 0 {
		t.Error("重置后服务配对未清空")
	}
	// 等待队列、计数器原样保留
	if len(reset.Customers) != 1 || reset.NextTicket != state.NextTicket || reset.ServedCount != state.ServedCount {
		t.Error("重置不应触碰等待队列和计数器")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	state := stateWithClerks(1)
	now := time.Now()
	state = Apply(state, model.Action{Type: model.ActionTakeNumber, At: now})

	input := state.Clone()
	Apply(state, model.Action{Type: model.ActionCallNextCustomer, ClerkID: 1, At: now})

	if len(state.Customers) != len(input.Customers) {
		t.Error("Apply修改了输入状态的等待队列")
	}
	if state.Clerks[0].Status != input.Clerks[0].Status {
		t.Error("Apply修改了输入状态的员工")
	}
}
