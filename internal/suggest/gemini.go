package suggest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
)

// 对外可见的固定回退文案。AI建议是尽力而为的附加能力，
// 任何错误都返回文案而不是向上抛错，不重试。
const (
	FallbackUnconfigured = "API密钥未配置，AI建议功能不可用。"
	FallbackError        = "获取AI建议失败，请稍后重试。"
)

const promptTemplate = `根据以下排队管理系统的实时数据，为管理员提供若干可执行的建议。目标是缩短等待时间、平衡员工负载、提升整体效率。回答要简明、条理清晰。

数据摘要:
%s

建议:`

// Service AI建议服务。启动时一次性构造：配置里没有API密钥就是
// 不可用状态，不做首次调用时的惰性初始化。
type Service struct {
	client *genai.Client
	model  string
}

// NewService 创建AI建议服务，密钥缺失或客户端创建失败都降级为
// 不可用服务而不是报错
func NewService(ctx context.Context) *Service {
	apiKey := config.AppConfig.Gemini.APIKey
	if apiKey == "" {
		log.Println("未配置Gemini API密钥，AI建议功能不可用")
		return &Service{}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Printf("创建Gemini客户端失败: %v，AI建议功能不可用", err)
		return &Service{}
	}

	m := config.AppConfig.Gemini.Model
	if m == "" {
		m = "gemini-2.5-flash"
	}

	return &Service{client: client, model: m}
}

// Available 服务是否可用
func (s *Service) Available() bool {
	return s.client != nil
}

// Summarize 把自由文本摘要交给模型生成管理建议。失败开放：
// 任何错误返回固定回退文案。
func (s *Service) Summarize(ctx context.Context, summary string) string {
	if s.client == nil {
		return FallbackUnconfigured
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		genai.Text(fmt.Sprintf(promptTemplate, summary)),
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0.5),
			TopP:        genai.Ptr[float32](0.95),
			TopK:        genai.Ptr[float32](40),
		})
	if err != nil {
		log.Printf("调用Gemini API失败: %v", err)
		return FallbackError
	}

	return resp.Text()
}

// BuildSummary 把队列快照汇编成供模型分析的文本摘要
func BuildSummary(state model.QueueState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "当前排队状况:\n")
	fmt.Fprintf(&b, "- 等待中客户: %d\n", len(state.Customers))
	fmt.Fprintf(&b, "- 今日已服务客户总数: %d\n", state.ServedCount)
	fmt.Fprintf(&b, "- 员工数量: %d\n", len(state.Clerks))
	fmt.Fprintf(&b, "- 员工明细:\n")

	for _, c := range state.Clerks {
		window := "未登录"
		if c.WindowID != nil {
			window = fmt.Sprintf("窗口%d", *c.WindowID)
		}
		avg := 0.0
		if c.CustomersServed > 0 {
			avg = c.TotalServiceTime / float64(c.CustomersServed)
		}
		fmt.Fprintf(&b, "  - %s (%s): 状态=%s, 已服务=%d, 平均用时=%.2f秒\n",
			c.Name, window, c.Status, c.CustomersServed, avg)
	}

	return b.String()
}
