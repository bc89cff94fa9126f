package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aboodalmontad/Hajz/internal/model"
	"github.com/aboodalmontad/Hajz/internal/replication"
)

// HTTPServer 写路径REST接口，覆盖取号机、员工站和管理台的动作。
// 除登录外所有动作都是即发即忘，提交后立即返回202。
type HTTPServer struct {
	engine *gin.Engine
	rep    *replication.Replicator
}

func NewHTTPServer(rep *replication.Replicator) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.Default()

	s := &HTTPServer{engine: engine, rep: rep}
	s.registerRoutes()
	return s
}

func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/state", s.getState)

	// 取号机
	api.POST("/tickets", s.takeNumber)

	// 员工站
	api.POST("/login", s.login)
	api.POST("/clerks/:id/call", s.clerkAction(model.ActionCallNextCustomer))
	api.POST("/clerks/:id/finish", s.clerkAction(model.ActionFinishService))
	api.POST("/clerks/:id/logout", s.clerkAction(model.ActionLogoutClerk))
	api.PUT("/clerks/:id/status", s.setClerkStatus)

	// 管理台
	api.POST("/clerks", s.addClerk)
	api.DELETE("/clerks/:id", s.clerkAction(model.ActionRemoveClerk))
	api.POST("/windows", s.addWindow)
	api.DELETE("/windows/:id", s.removeWindow)
}

// Start 启动HTTP服务器
func (s *HTTPServer) Start(port int) error {
	return s.engine.Run(fmt.Sprintf(":%d", port))
}

func (s *HTTPServer) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":    s.rep.Snapshot(),
		"readOnly": s.rep.ReadOnly(),
	})
}

func (s *HTTPServer) takeNumber(c *gin.Context) {
	s.rep.Dispatch(model.Action{Type: model.ActionTakeNumber})
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// clerkAction 仅携带员工ID的动作共用一个处理器
func (s *HTTPServer) clerkAction(actionType model.ActionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		clerkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的员工ID"})
			return
		}
		s.rep.Dispatch(model.Action{Type: actionType, ClerkID: clerkID})
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}

func (s *HTTPServer) setClerkStatus(c *gin.Context) {
	clerkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的员工ID"})
		return
	}

	var body struct {
		Status model.ClerkStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	switch body.Status {
	case model.ClerkAvailable, model.ClerkBusy, model.ClerkOffline:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的员工状态"})
		return
	}

	s.rep.Dispatch(model.Action{Type: model.ActionSetClerkStatus, ClerkID: clerkID, Status: body.Status})
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// login 唯一的同步写接口，带类型的业务失败映射到HTTP状态码
func (s *HTTPServer) login(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		WindowID int64  `json:"windowId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	clerk, err := s.rep.Login(body.Username, body.Password, body.WindowID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, model.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, model.ErrAlreadyLoggedIn), errors.Is(err, model.ErrWindowOccupied):
			status = http.StatusConflict
		case errors.Is(err, model.ErrLoginTimeout):
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clerk": clerk})
}

func (s *HTTPServer) addClerk(c *gin.Context) {
	var body struct {
		Name     string `json:"name"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	s.rep.Dispatch(model.Action{Type: model.ActionAddClerk, Name: body.Name, Username: body.Username, Password: body.Password})
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *HTTPServer) addWindow(c *gin.Context) {
	var body struct {
		Number int `json:"number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	s.rep.Dispatch(model.Action{Type: model.ActionAddWindow, WindowNumber: body.Number})
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *HTTPServer) removeWindow(c *gin.Context) {
	windowID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的窗口ID"})
		return
	}

	s.rep.Dispatch(model.Action{Type: model.ActionRemoveWindow, WindowID: windowID})
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
