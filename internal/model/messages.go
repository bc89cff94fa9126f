package model

import (
	"errors"
	"time"
)

// ActionType 规约器动作类型，闭合集合，规约器内穷举匹配
type ActionType string

const (
	ActionTakeNumber       ActionType = "TAKE_NUMBER"
	ActionCallNextCustomer ActionType = "CALL_NEXT_CUSTOMER"
	ActionFinishService    ActionType = "FINISH_SERVICE"
	ActionSetClerkStatus   ActionType = "SET_CLERK_STATUS"
	ActionAddClerk         ActionType = "ADD_CLERK"
	ActionRemoveClerk      ActionType = "REMOVE_CLERK"
	ActionLogoutClerk      ActionType = "LOGOUT_CLERK"
	ActionAddWindow        ActionType = "ADD_WINDOW"
	ActionRemoveWindow     ActionType = "REMOVE_WINDOW"
)

// Action 写意图。At由入队方盖时间戳，规约器本身不读时钟。
type Action struct {
	Type         ActionType  `json:"type"`
	ClerkID      int64       `json:"clerkId,omitempty"`
	WindowID     int64       `json:"windowId,omitempty"`
	WindowNumber int         `json:"windowNumber,omitempty"`
	Status       ClerkStatus `json:"status,omitempty"`
	Name         string      `json:"name,omitempty"`
	Username     string      `json:"username,omitempty"`
	Password     string      `json:"password,omitempty"`
	At           time.Time   `json:"at"`
}

// IsActionType 判断总线消息类型是否为写动作
func IsActionType(t string) bool {
	switch ActionType(t) {
	case ActionTakeNumber, ActionCallNextCustomer, ActionFinishService,
		ActionSetClerkStatus, ActionAddClerk, ActionRemoveClerk,
		ActionLogoutClerk, ActionAddWindow, ActionRemoveWindow:
		return true
	}
	return false
}

// 广播总线消息类型（写动作消息的类型与动作类型同名）
const (
	MsgRequestState  = "REQUEST_STATE"
	MsgStateUpdate   = "STATE_UPDATE"
	MsgLoginRequest  = "LOGIN_REQUEST"
	MsgLoginResponse = "LOGIN_RESPONSE"
)

// BusMessage 广播总线消息信封（带类型标签的联合体）
type BusMessage struct {
	Type   string         `json:"type"`
	Sender string         `json:"sender,omitempty"`
	State  *QueueState    `json:"state,omitempty"`
	Action *Action        `json:"action,omitempty"`
	Login  *LoginRequest  `json:"login,omitempty"`
	Result *LoginResponse `json:"result,omitempty"`
}

// LoginRequest 登录RPC请求，经由总线送达主节点
type LoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	WindowID      int64  `json:"windowId"`
	CorrelationID string `json:"correlationId"`
}

// LoginResponse 登录RPC响应，广播给所有节点，按关联ID匹配等待方
type LoginResponse struct {
	CorrelationID string `json:"correlationId"`
	Clerk         *Clerk `json:"clerk,omitempty"`
	Error         string `json:"error,omitempty"`
}

// 登录业务失败（作为返回值传递，从不panic）
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAlreadyLoggedIn    = errors.New("该员工已在其他窗口登录")
	ErrWindowOccupied     = errors.New("该窗口已被其他员工占用")
	ErrLoginTimeout       = errors.New("登录请求超时，请确认主节点正在运行")
)

// 登录失败错误码，用于总线传输后还原为哨兵错误
const (
	LoginErrInvalidCredentials = "INVALID_CREDENTIALS"
	LoginErrAlreadyLoggedIn    = "ALREADY_LOGGED_IN"
	LoginErrWindowOccupied     = "WINDOW_OCCUPIED"
)

// LoginErrorCode 哨兵错误转错误码
func LoginErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return LoginErrInvalidCredentials
	case errors.Is(err, ErrAlreadyLoggedIn):
		return LoginErrAlreadyLoggedIn
	case errors.Is(err, ErrWindowOccupied):
		return LoginErrWindowOccupied
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// LoginErrorFromCode 错误码转哨兵错误
func LoginErrorFromCode(code string) error {
	switch code {
	case "":
		return nil
	case LoginErrInvalidCredentials:
		return ErrInvalidCredentials
	case LoginErrAlreadyLoggedIn:
		return ErrAlreadyLoggedIn
	case LoginErrWindowOccupied:
		return ErrWindowOccupied
	}
	return errors.New(code)
}

// LoginResult 登录RPC最终结果，经关联器回传给等待方
type LoginResult struct {
	Clerk *Clerk
	Err   error
}

// ActionEvent 主节点写入Kafka的动作审计事件
type ActionEvent struct {
	Type         ActionType `json:"type"`
	ClerkID      int64      `json:"clerkId,omitempty"`
	TicketNumber string     `json:"ticketNumber,omitempty"`
	At           time.Time  `json:"at"`
}
