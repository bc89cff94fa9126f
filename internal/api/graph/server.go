package graph

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
	"github.com/aboodalmontad/Hajz/internal/replication"
	"github.com/aboodalmontad/Hajz/internal/suggest"
)

// GraphQLServer 只读查询面，供主显示屏和管理驾驶舱取数
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// GraphQL Schema定义
const schemaString = `
type Customer {
  id: ID!
  ticketNumber: String!
  arrivalTime: String!
}

type Window {
  id: ID!
  number: Int!
}

type Clerk {
  id: ID!
  name: String!
  username: String!
  windowId: Int
  status: String!
  customersServed: Int!
  totalServiceTime: Float!
  currentCustomerId: Int
}

type ServingInfo {
  clerk: Clerk!
  customer: Customer!
}

type QueueState {
  customers: [Customer!]!
  windows: [Window!]!
  clerks: [Clerk!]!
  serving: [ServingInfo!]!
  nextTicket: Int!
  servedCount: Int!
}

type Stats {
  waitingCount: Int!
  servedCount: Int!
  activeClerks: Int!
  totalClerks: Int!
  averageServiceTime: Float!
}

type Query {
  # 完整队列状态快照
  queueState: QueueState!

  # 管理驾驶舱统计
  stats: Stats!

  # 当前进程是否为只读从节点
  readOnly: Boolean!

  # AI运营建议（不可用时返回固定文案）
  suggestions: String!
}

schema {
  query: Query
}
`

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(rep *replication.Replicator, suggester *suggest.Service) *GraphQLServer {
	resolver := &Resolver{rep: rep, suggester: suggester}

	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	return &GraphQLServer{
		schema:   schema,
		handler:  &relay.Handler{Schema: schema},
		resolver: resolver,
	}
}

// Start 启动GraphQL服务器
func (s *GraphQLServer) Start(port int) error {
	mux := http.NewServeMux()
	mux.Handle(config.AppConfig.GraphQL.Path, s.handler)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("GraphQL查询服务已启动，端点: http://localhost%s%s", addr, config.AppConfig.GraphQL.Path)

	return http.ListenAndServe(addr, mux)
}

// Resolver GraphQL解析器
type Resolver struct {
	rep       *replication.Replicator
	suggester *suggest.Service
}

// QueueState 完整队列状态快照
func (r *Resolver) QueueState(ctx context.Context) *QueueStateResolver {
	state := r.rep.Snapshot()
	return &QueueStateResolver{state: state}
}

// Stats 管理驾驶舱统计
func (r *Resolver) Stats(ctx context.Context) *StatsResolver {
	return &StatsResolver{state: r.rep.Snapshot()}
}

// ReadOnly 是否为只读从节点
func (r *Resolver) ReadOnly(ctx context.Context) bool {
	return r.rep.ReadOnly()
}

// Suggestions 基于当前快照生成AI运营建议
func (r *Resolver) Suggestions(ctx context.Context) string {
	summary := suggest.BuildSummary(r.rep.Snapshot())
	return r.suggester.Summarize(ctx, summary)
}

// QueueStateResolver 队列状态解析器
type QueueStateResolver struct {
	state model.QueueState
}

func (r *QueueStateResolver) Customers() []*CustomerResolver {
	out := make([]*CustomerResolver, len(r.state.Customers))
	for i := range r.state.Customers {
		out[i] = &CustomerResolver{customer: r.state.Customers[i]}
	}
	return out
}

func (r *QueueStateResolver) Windows() []*WindowResolver {
	out := make([]*WindowResolver, len(r.state.Windows))
	for i := range r.state.Windows {
		out[i] = &WindowResolver{window: r.state.Windows[i]}
	}
	return out
}

func (r *QueueStateResolver) Clerks() []*ClerkResolver {
	out := make([]*ClerkResolver, len(r.state.Clerks))
	for i := range r.state.Clerks {
		out[i] = &ClerkResolver{clerk: r.state.Clerks[i]}
	}
	return out
}

func (r *QueueStateResolver) Serving() []*ServingInfoResolver {
	out := make([]*ServingInfoResolver, len(r.state.Serving))
	for i := range r.state.Serving {
		out[i] = &ServingInfoResolver{info: r.state.Serving[i]}
	}
	return out
}

func (r *QueueStateResolver) NextTicket() int32 {
	return int32(r.state.NextTicket)
}

func (r *QueueStateResolver) ServedCount() int32 {
	return int32(r.state.ServedCount)
}

// CustomerResolver 客户解析器
type CustomerResolver struct {
	customer model.Customer
}

func (r *CustomerResolver) ID() graphql.ID {
	return graphql.ID(fmt.Sprintf("%d", r.customer.ID))
}

func (r *CustomerResolver) TicketNumber() string {
	return r.customer.TicketNumber
}

func (r *CustomerResolver) ArrivalTime() string {
	return r.customer.ArrivalTime.Format(time.RFC3339)
}

// WindowResolver 窗口解析器
type WindowResolver struct {
	window model.Window
}

func (r *WindowResolver) ID() graphql.ID {
	return graphql.ID(fmt.Sprintf("%d", r.window.ID))
}

func (r *WindowResolver) Number() int32 {
	return int32(r.window.Number)
}

// ClerkResolver 员工解析器。不暴露密码字段。
type ClerkResolver struct {
	clerk model.Clerk
}

func (r *ClerkResolver) ID() graphql.ID {
	return graphql.ID(fmt.Sprintf("%d", r.clerk.ID))
}

func (r *ClerkResolver) Name() string {
	return r.clerk.Name
}

func (r *ClerkResolver) Username() string {
	return r.clerk.Username
}

func (r *ClerkResolver) WindowID() *int32 {
	if r.clerk.WindowID == nil {
		return nil
	}
	v := int32(*r.clerk.WindowID)
	return &v
}

func (r *ClerkResolver) Status() string {
	return string(r.clerk.Status)
}

func (r *ClerkResolver) CustomersServed() int32 {
	return int32(r.clerk.CustomersServed)
}

func (r *ClerkResolver) TotalServiceTime() float64 {
	return r.clerk.TotalServiceTime
}

func (r *ClerkResolver) CurrentCustomerID() *int32 {
	if r.clerk.CurrentCustomerID == nil {
		return nil
	}
	v := int32(*r.clerk.CurrentCustomerID)
	return &v
}

// ServingInfoResolver 服务配对解析器
type ServingInfoResolver struct {
	info model.ServingInfo
}

func (r *ServingInfoResolver) Clerk() *ClerkResolver {
	return &ClerkResolver{clerk: r.info.Clerk}
}

func (r *ServingInfoResolver) Customer() *CustomerResolver {
	return &CustomerResolver{customer: r.info.Customer}
}

// StatsResolver 统计解析器
type StatsResolver struct {
	state model.QueueState
}

func (r *StatsResolver) WaitingCount() int32 {
	return int32(len(r.state.Customers))
}

func (r *StatsResolver) ServedCount() int32 {
	return int32(r.state.ServedCount)
}

func (r *StatsResolver) ActiveClerks() int32 {
	n := 0
	for _, c := range r.state.Clerks {
		if c.Status != model.ClerkOffline {
			n++
		}
	}
	return int32(n)
}

func (r *StatsResolver) TotalClerks() int32 {
	return int32(len(r.state.Clerks))
}

func (r *StatsResolver) AverageServiceTime() float64 {
	if r.state.ServedCount == 0 {
		return 0
	}
	total := 0.0
	for _, c := range r.state.Clerks {
		total += c.TotalServiceTime
	}
	return total / float64(r.state.ServedCount)
}
