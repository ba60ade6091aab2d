// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aiko-go/internal/config"
	"aiko-go/internal/model"
	"aiko-go/pkg/events"
	"aiko-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Producer 把完成的问答发布到 Kafka，消息以会话键分区，同一会话的事件保持顺序。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// OnExchange 发布一次问答事件。
func (p *Producer) OnExchange(ctx context.Context, ex *model.Exchange) error {
	msg, err := encodeMessage(ex)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish exchange event: %w", err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeMessage(ex *model.Exchange) (kafka.Message, error) {
	value, err := json.Marshal(events.FromExchange(ex))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode exchange event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ex.ConversationKey),
		Value: value,
	}, nil
}

// Consume 从主题读取问答事件并交给 handle，直到 ctx 被取消。
// 无法解析的消息会被记录后跳过。
func Consume(ctx context.Context, cfg config.KafkaConfig, groupID string, handle func(events.ExchangeEvent) error) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		var ev events.ExchangeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, offset: %d", err, m.Offset)
		} else if err := handle(ev); err != nil {
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// brokers 解析逗号分隔的 broker 列表。
func brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
