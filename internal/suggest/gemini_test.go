package suggest

import (
	"context"
	"strings"
	"testing"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
)

func TestUnconfiguredServiceFailsOpen(t *testing.T) {
	config.AppConfig.Gemini.APIKey = ""

	s := NewService(context.Background())
	if s.Available() {
		t.Fatal("无API密钥的服务不应可用")
	}

	// 失败开放：返回固定文案而不是错误
	got := s.Summarize(context.Background(), "任意摘要")
	if got != FallbackUnconfigured {
		t.Errorf("Summarize = %q, 期望固定回退文案", got)
	}
}

func TestBuildSummary(t *testing.T) {
	state := model.SeedState()
	wid := int64(2)
	state.Clerks[0].WindowID = &wid
	state.Clerks[0].Status = model.ClerkAvailable
	state.Clerks[0].CustomersServed = 4
	state.Clerks[0].TotalServiceTime = 120
	state.ServedCount = 4
	state.Customers = append(state.Customers, model.Customer{ID: 101, TicketNumber: "A-101"})

	summary := BuildSummary(state)

	for _, want := range []string{
		"等待中客户: 1",
		"今日已服务客户总数: 4",
		"员工数量: 3",
		"窗口2",
		"平均用时=30.00秒",
		"未登录",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("摘要缺少 %q:\n%s", want, summary)
		}
	}
}
