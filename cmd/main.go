package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/api"
	"github.com/aboodalmontad/Hajz/internal/api/graph"
	"github.com/aboodalmontad/Hajz/internal/bus"
	intkafka "github.com/aboodalmontad/Hajz/internal/kafka"
	"github.com/aboodalmontad/Hajz/internal/lock"
	"github.com/aboodalmontad/Hajz/internal/model"
	"github.com/aboodalmontad/Hajz/internal/queue"
	"github.com/aboodalmontad/Hajz/internal/replication"
	"github.com/aboodalmontad/Hajz/internal/repository"
	"github.com/aboodalmontad/Hajz/internal/rpc"
	"github.com/aboodalmontad/Hajz/internal/suggest"
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功，当前实例ID: %d", *instanceID)

	// 进程唯一标识，用于总线过滤自己发出的消息
	processID := uuid.NewString()

	// 创建数据库连接
	mysqlRepo, err := repository.NewMySQLRepository()
	if err != nil {
		log.Fatalf("初始化MySQL仓库失败: %v", err)
	}
	defer mysqlRepo.Close()
	log.Printf("MySQL仓库初始化成功")

	// 创建分布式锁（主节点选举仲裁）
	arbiter, err := newArbiter()
	if err != nil {
		log.Fatalf("初始化分布式锁失败: %v", err)
	}
	defer arbiter.Close()

	// 启动时一次性竞选：拿到锁即为主节点，拿不到以只读从节点运行。
	// 进程存活期间不再重新竞选。
	lockAcquired, err := arbiter.AcquireLock(cfg.Leader.LockName, cfg.Leader.LockTTL)
	if err != nil {
		log.Printf("竞选主节点失败: %v，以从节点模式启动", err)
	}

	var role replication.Role
	var initial model.QueueState
	if lockAcquired {
		role = replication.RoleLeader
		log.Printf("实例 %d 竞选成功，以主节点模式启动", *instanceID)

		// 加载持久化状态，并把所有员工会话强制回到登出基线：
		// 上一任主节点崩溃时的进行中会话不得复活
		loaded, err := mysqlRepo.LoadState()
		if err != nil {
			log.Fatalf("加载队列状态失败: %v", err)
		}
		initial = queue.ResetSessions(loaded)
	} else {
		role = replication.RoleFollower
		log.Printf("实例 %d 未获取到主节点锁，以只读从节点模式启动", *instanceID)
		initial = model.EmptyState()
	}

	// 创建广播总线
	broadcastBus, err := bus.NewBus(processID)
	if err != nil {
		log.Fatalf("初始化广播总线失败: %v", err)
	}
	defer broadcastBus.Stop()
	log.Printf("广播总线初始化成功")

	// 创建Kafka审计流生产者（未配置时跳过）
	var auditor replication.Auditor
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := intkafka.NewProducer()
		if err != nil {
			log.Printf("初始化Kafka生产者失败: %v，审计流停用", err)
		} else {
			defer producer.Close()
			auditor = producer
			log.Printf("Kafka审计流初始化成功")
		}
	}

	// 从节点不落盘：主节点以外传入空写入器
	var store replication.Store = mysqlRepo
	if role == replication.RoleFollower {
		store = noopStore{}
	}

	correlator := rpc.NewCorrelator()
	replicator := replication.NewReplicator(role, initial, broadcastBus, store, auditor, correlator)
	replicator.Start()
	defer replicator.Stop()

	broadcastBus.StartReceiving(replicator.HandleMessage)

	// 主节点周期性续期锁，模拟"进程退出即释放"的租约语义
	stopRefresh := make(chan struct{})
	if role == replication.RoleLeader {
		go maintainLeaderLock(arbiter, cfg.Leader.LockName, cfg.Leader.LockTTL, stopRefresh)
	}
	defer close(stopRefresh)

	// 创建AI建议服务（一次性构造，密钥缺失即为不可用状态）
	suggester := suggest.NewService(context.Background())

	// 启动GraphQL查询服务
	graphqlServer := graph.NewGraphQLServer(replicator, suggester)
	go func() {
		if err := graphqlServer.Start(cfg.Server.GraphQLPort + *instanceID - 1); err != nil {
			log.Fatalf("启动GraphQL服务器失败: %v", err)
		}
	}()

	// 启动REST写接口
	httpServer := api.NewHTTPServer(replicator)
	serverPort := cfg.Server.Port + *instanceID - 1
	go func() {
		if err := httpServer.Start(serverPort); err != nil {
			log.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	log.Printf("Hajz 排队系统 (实例 %d, 角色 %s) 已启动，服务地址: http://localhost:%d", *instanceID, role, serverPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")
}

// newArbiter 按配置选择锁后端
func newArbiter() (lock.Lock, error) {
	if strings.EqualFold(config.AppConfig.Leader.Backend, "etcd") {
		return lock.NewETCDLock()
	}
	return lock.NewRedisLock()
}

// maintainLeaderLock 周期性续期主节点锁。续期失败只告警，不降级角色。
func maintainLeaderLock(arbiter lock.Lock, lockName string, ttl time.Duration, stop <-chan struct{}) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ok, err := arbiter.RefreshLock(lockName, ttl); err != nil || !ok {
				log.Printf("续期主节点锁失败(ok=%v): %v", ok, err)
			}
		case <-stop:
			return
		}
	}
}

// noopStore 从节点的空持久化写入器，保证从节点永远不写存储
type noopStore struct{}

func (noopStore) SaveState(model.QueueState) error { return nil }
