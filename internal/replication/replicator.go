package replication

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
	"github.com/aboodalmontad/Hajz/internal/queue"
	"github.com/aboodalmontad/Hajz/internal/rpc"
)

// Role 进程角色，启动时一次性选定，存活期间不再变更
type Role string

const (
	RoleLeader   Role = "LEADER"
	RoleFollower Role = "FOLLOWER"
)

// Bus 广播总线发布端
type Bus interface {
	Publish(msg *model.BusMessage) error
}

// Store 持久化存储写入端，只有主节点调用
type Store interface {
	SaveState(state model.QueueState) error
}

// Auditor 动作审计流（Kafka），可为nil
type Auditor interface {
	SendActionEvent(event *model.ActionEvent) error
}

// Replicator 复制协议核心。队列状态由单一事件循环协程独占：
// 本地动作、总线消息、快照读取都汇入同一条事件通道，逐条处理完毕
// 才取下一条，进程内不存在两次规约交错执行。
//
// 主节点写路径：应用动作 -> 持久化 -> 广播完整快照。
// 从节点写路径：把写意图发布到总线，等主节点回播快照。
// 从节点收到快照时整体替换本地状态，不合并不打补丁。
type Replicator struct {
	role       Role
	state      model.QueueState
	bus        Bus
	store      Store
	auditor    Auditor
	correlator *rpc.Correlator

	events   chan event
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type event struct {
	action   *model.Action
	msg      *model.BusMessage
	login    *loginCall
	snapshot chan model.QueueState
}

type loginCall struct {
	username string
	password string
	windowID int64
	reply    chan model.LoginResult
}

func NewReplicator(role Role, initial model.QueueState, bus Bus, store Store, auditor Auditor, correlator *rpc.Correlator) *Replicator {
	return &Replicator{
		role:       role,
		state:      initial,
		bus:        bus,
		store:      store,
		auditor:    auditor,
		correlator: correlator,
		events:     make(chan event, 256),
		stopChan:   make(chan struct{}),
	}
}

// Start 启动事件循环。从节点启动即广播一次REQUEST_STATE索要当前快照。
func (r *Replicator) Start() {
	r.wg.Add(1)
	go r.run()

	if r.role == RoleFollower {
		if err := r.bus.Publish(&model.BusMessage{Type: model.MsgRequestState}); err != nil {
			log.Printf("发布REQUEST_STATE失败: %v", err)
		}
	}

	log.Printf("复制协议已启动，角色: %s", r.role)
}

// Stop 停止事件循环
func (r *Replicator) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

// Role 当前进程角色
func (r *Replicator) Role() Role {
	return r.role
}

// ReadOnly 从节点只读警示标志，供界面层展示"另一主节点在运行"
func (r *Replicator) ReadOnly() bool {
	return r.role == RoleFollower
}

// Dispatch 提交一个写动作。主节点在进程内应用，
// 从节点把动作转发给主节点，本地状态等快照回播。
// 调用方视角是即发即忘。
func (r *Replicator) Dispatch(action model.Action) {
	if action.At.IsZero() {
		action.At = time.Now()
	}
	select {
	case r.events <- event{action: &action}:
	case <-r.stopChan:
	}
}

// Snapshot 读取当前状态的深拷贝，经事件循环往返保证无数据竞争
func (r *Replicator) Snapshot() model.QueueState {
	reply := make(chan model.QueueState, 1)
	select {
	case r.events <- event{snapshot: reply}:
		return <-reply
	case <-r.stopChan:
		return model.EmptyState()
	}
}

// HandleMessage 总线消息入口，由总线接收协程调用
func (r *Replicator) HandleMessage(msg *model.BusMessage) {
	select {
	case r.events <- event{msg: msg}:
	case <-r.stopChan:
	}
}

// Login 登录RPC。主节点在进程内同步执行；从节点注册关联ID后
// 把请求发布到总线，等待匹配的响应，超时上限取配置（默认10秒）。
func (r *Replicator) Login(username, password string, windowID int64) (*model.Clerk, error) {
	if r.role == RoleLeader {
		reply := make(chan model.LoginResult, 1)
		call := &loginCall{username: username, password: password, windowID: windowID, reply: reply}
		select {
		case r.events <- event{login: call}:
		case <-r.stopChan:
			return nil, model.ErrLoginTimeout
		}
		result := <-reply
		return result.Clerk, result.Err
	}

	correlationID, ch := r.correlator.Register()

	err := r.bus.Publish(&model.BusMessage{
		Type: model.MsgLoginRequest,
		Login: &model.LoginRequest{
			Username:      username,
			Password:      password,
			WindowID:      windowID,
			CorrelationID: correlationID,
		},
	})
	if err != nil {
		log.Printf("发布登录请求失败: %v", err)
	}

	return r.correlator.Wait(correlationID, ch, config.AppConfig.Login.Timeout)
}

func (r *Replicator) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			log.Println("复制协议事件循环已停止")
			return
		case ev := <-r.events:
			switch {
			case ev.snapshot != nil:
				ev.snapshot <- r.state.Clone()
			case ev.action != nil:
				r.handleAction(*ev.action)
			case ev.login != nil:
				r.handleLocalLogin(ev.login)
			case ev.msg != nil:
				r.handleBusMessage(ev.msg)
			}
		}
	}
}

func (r *Replicator) handleAction(action model.Action) {
	if r.role == RoleLeader {
		r.applyAndBroadcast(action)
		return
	}

	// 从节点不直接改本地状态，把写意图交给主节点
	msg := &model.BusMessage{Type: string(action.Type), Action: &action}
	if err := r.bus.Publish(msg); err != nil {
		log.Printf("转发动作 %s 失败: %v", action.Type, err)
	}
}

func (r *Replicator) handleBusMessage(msg *model.BusMessage) {
	if r.role == RoleLeader {
		switch {
		case msg.Type == model.MsgRequestState:
			r.broadcastState()
		case msg.Type == model.MsgLoginRequest && msg.Login != nil:
			r.handleForeignLogin(msg.Login)
		case msg.Action != nil && model.IsActionType(msg.Type):
			// 远端写意图与本地动作同等对待
			r.applyAndBroadcast(*msg.Action)
		}
		return
	}

	switch {
	case msg.Type == model.MsgStateUpdate && msg.State != nil:
		// 整体替换，幂等：重复快照是no-op，乱序快照由下一条纠正
		r.state = msg.State.Clone()
	case msg.Type == model.MsgLoginResponse && msg.Result != nil:
		r.correlator.Resolve(msg.Result.CorrelationID, model.LoginResult{
			Clerk: msg.Result.Clerk,
			Err:   model.LoginErrorFromCode(msg.Result.Error),
		})
	}
}

// applyAndBroadcast 主节点唯一的状态变更入口
func (r *Replicator) applyAndBroadcast(action model.Action) {
	before := r.state
	r.state = queue.Apply(r.state, action)
	r.persistAndPublish()
	r.audit(action, before)
}

func (r *Replicator) handleLocalLogin(call *loginCall) {
	next, clerk, err := queue.Login(r.state, call.username, call.password, call.windowID)
	if err == nil {
		r.state = next
		r.persistAndPublish()
	}
	call.reply <- model.LoginResult{Clerk: clerk, Err: err}
}

func (r *Replicator) handleForeignLogin(req *model.LoginRequest) {
	next, clerk, err := queue.Login(r.state, req.Username, req.Password, req.WindowID)
	if err == nil {
		r.state = next
		r.persistAndPublish()
	}

	response := &model.BusMessage{
		Type: model.MsgLoginResponse,
		Result: &model.LoginResponse{
			CorrelationID: req.CorrelationID,
			Clerk:         clerk,
			Error:         model.LoginErrorCode(err),
		},
	}
	if err := r.bus.Publish(response); err != nil {
		log.Printf("发布登录响应失败: %v", err)
	}
}

// persistAndPublish 持久化并广播快照。持久化失败只记日志：
// 运行中的主节点以内存状态为准。
func (r *Replicator) persistAndPublish() {
	if err := r.store.SaveState(r.state); err != nil {
		log.Printf("持久化队列状态失败: %v", err)
	}
	r.broadcastState()
}

func (r *Replicator) broadcastState() {
	snapshot := r.state.Clone()
	msg := &model.BusMessage{Type: model.MsgStateUpdate, State: &snapshot}
	if err := r.bus.Publish(msg); err != nil {
		log.Printf("广播状态快照失败: %v", err)
	}
}

// audit 向审计流发送动作事件，失败不影响主流程
func (r *Replicator) audit(action model.Action, before model.QueueState) {
	if r.auditor == nil {
		return
	}

	event := &model.ActionEvent{
		Type:    action.Type,
		ClerkID: action.ClerkID,
		At:      action.At,
	}
	if action.Type == model.ActionTakeNumber {
		event.TicketNumber = fmt.Sprintf("A-%d", before.NextTicket)
	}

	if err := r.auditor.SendActionEvent(event); err != nil {
		log.Printf("发送动作审计事件失败: %v", err)
	}
}
