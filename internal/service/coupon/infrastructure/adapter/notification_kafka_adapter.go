// internal/service/coupon/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"flashmart/internal/pkg/mq"
	"flashmart/internal/service/coupon/domain"
)

// NotificationTopic 是发放成功事件使用的主题，push-gateway 消费它做推送。
const NotificationTopic = "coupon.issued"

// IssuedEvent 是发放成功后的通知事件。
type IssuedEvent struct {
	UserID     string    `json:"user_id"`
	CouponCode string    `json:"coupon_code"`
	IssuanceID string    `json:"issuance_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

// NotificationKafkaAdapter 实现了 port.NotificationProducer 接口。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotificationKafkaAdapter 创建通知生产者适配器。
func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// NotifyIssued 发送发放成功通知。
// 调用通用的 mq.ProduceMessage，追踪上下文会自动注入消息头。
func (a *NotificationKafkaAdapter) NotifyIssued(ctx context.Context, issuance domain.Issuance) error {
	event := IssuedEvent{
		UserID:     issuance.UserID,
		CouponCode: issuance.Code,
		IssuanceID: issuance.ID,
		IssuedAt:   issuance.IssuedAt,
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal issued event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(issuance.UserID), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
