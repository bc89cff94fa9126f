package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
)

// MessageHandler 总线消息处理函数
type MessageHandler func(msg *model.BusMessage)

// Bus 基于Redis Pub/Sub的广播总线。无序、尽力投递，
// 同一协调域内的所有进程订阅同一个频道。
type Bus struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	ctx        context.Context
	cancel     context.CancelFunc
	channel    string
	instanceID string
	wg         sync.WaitGroup
}

// NewBus 创建广播总线客户端。instanceID用于过滤自己发出的消息，
// 因为Redis会把消息回送给发送者自身的订阅。
func NewBus(instanceID string) (*Bus, error) {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.Address,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  0, // 订阅连接长期阻塞读
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("Redis总线节点连接测试失败: %w", err)
	}

	channel := config.AppConfig.Redis.Channel
	pubsub := client.Subscribe(ctx, channel)

	// 确认订阅建立，避免启动期丢消息
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("订阅频道 %s 失败: %w", channel, err)
	}

	return &Bus{
		client:     client,
		pubsub:     pubsub,
		ctx:        ctx,
		cancel:     cancel,
		channel:    channel,
		instanceID: instanceID,
	}, nil
}

// Publish 发布消息到广播频道
func (b *Bus) Publish(msg *model.BusMessage) error {
	msg.Sender = b.instanceID

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化总线消息失败: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("发布总线消息失败: %w", err)
	}
	return nil
}

// StartReceiving 启动接收协程，逐条调用handler。
// 自己发出的消息被跳过，消息在handler返回后才处理下一条。
func (b *Bus) StartReceiving(handler MessageHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ch := b.pubsub.Channel()
		for {
			select {
			case <-b.ctx.Done():
				log.Println("总线接收协程收到停止信号")
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				var msg model.BusMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Printf("解析总线消息失败: %v", err)
					continue
				}

				if msg.Sender == b.instanceID {
					continue
				}

				handler(&msg)
			}
		}
	}()

	log.Printf("广播总线已启动，频道: %s", b.channel)
}

// Stop 停止总线
func (b *Bus) Stop() error {
	b.cancel()

	if err := b.pubsub.Close(); err != nil {
		log.Printf("关闭订阅失败: %v", err)
	}

	b.wg.Wait()
	return b.client.Close()
}
