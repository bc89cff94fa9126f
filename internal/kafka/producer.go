package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
)

// Producer 动作审计流生产者。主节点每应用一个动作就写入一条
// 审计事件，给运维留一条广播总线提供不了的可回放动作日志。
type Producer struct {
	writer *kafka.Writer
	ctx    context.Context
}

func NewProducer() (*Producer, error) {
	if len(config.AppConfig.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka broker")
	}

	// 使用Hash分区器，同类型动作进入同一分区
	writer := &kafka.Writer{
		Addr:     kafka.TCP(config.AppConfig.Kafka.Brokers...),
		Topic:    config.AppConfig.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Producer{
		writer: writer,
		ctx:    context.Background(),
	}, nil
}

// SendActionEvent 发送动作审计事件
func (p *Producer) SendActionEvent(event *model.ActionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化审计事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(p.ctx, msg); err != nil {
		return fmt.Errorf("发送审计事件失败: %w", err)
	}
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
