// internal/service/ranking/infrastructure/adapter/order_event_consumer.go
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"flashmart/internal/pkg/logger"
	"flashmart/internal/pkg/mq"
	"flashmart/internal/service/ranking/application"
)

// OrderCompletedTopic 是订单服务发布成交事件的主题。
const OrderCompletedTopic = "order.completed"

// OrderCompletedEvent 是订单完成事件的消息体。
type OrderCompletedEvent struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Items   []struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
	} `json:"items"`
}

// OrderEventConsumer 是驱动适配器：监听订单完成事件并累加榜单分数。
type OrderEventConsumer struct {
	reader  *kafka.Reader
	service *application.RankingService
}

// NewOrderEventConsumer 创建消费者适配器。
func NewOrderEventConsumer(reader *kafka.Reader, service *application.RankingService) *OrderEventConsumer {
	return &OrderEventConsumer{reader: reader, service: service}
}

// Start 开始消费，阻塞直到 ctx 取消。
func (c *OrderEventConsumer) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("✅ order event consumer started")
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 order event consumer shutting down")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
			time.Sleep(time.Second)
			continue
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
		}
	}
}

// processMessage 反序列化事件并逐商品累加分数。
// 单个商品的失败不影响其余商品，也不阻塞 offset 提交
// （分数是尽力而为的统计信号，不值得为它重投消息）。
func (c *OrderEventConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event OrderCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(parentCtx).Error().Err(err).Msg("failed to unmarshal order event, skipping")
		return
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	for _, item := range event.Items {
		if item.ProductID == "" {
			continue
		}
		if err := c.service.IncrementScore(ctx, item.ProductID, float64(item.Quantity)); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", event.OrderID).
				Str("product_id", item.ProductID).
				Msg("failed to increment ranking score")
		}
	}
}
