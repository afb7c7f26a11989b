package job

import (
	"context"
	"time"

	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/sirupsen/logrus"
)

// Publisher 消息投递目标
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把成交事件投递到 Kafka
//
// 投递是至少一次：发送成功但标记 SENT 失败时，下一轮会重复发送，
// 下游按 transaction_no 去重。
type OutboxSender struct {
	queue         repository.OutboxQueue
	publisher     Publisher
	metrics       *metrics.Metrics
	log           logrus.FieldLogger
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

type OutboxSenderOptions struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetryCount int
}

func NewOutboxSender(queue repository.OutboxQueue, publisher Publisher, m *metrics.Metrics, log logrus.FieldLogger, opts OutboxSenderOptions) *OutboxSender {
	return &OutboxSender{
		queue:         queue,
		publisher:     publisher,
		metrics:       m,
		log:           log.WithField("job", "OutboxSender"),
		stopCh:        make(chan struct{}),
		interval:      opts.Interval,
		batchSize:     opts.BatchSize,
		maxRetryCount: opts.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 投递一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.queue.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	logger := s.log.WithFields(logrus.Fields{
		"id":         msg.ID,
		"topic":      msg.Topic,
		"key":        msg.MessageKey,
		"event_type": msg.EventType,
	})

	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		s.metrics.RecordOutbox("sent")
		if updateErr := s.queue.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logger.WithError(updateErr).Error("更新消息状态失败")
		} else {
			logger.Debug("消息发送成功")
		}
		return true
	}

	s.metrics.RecordOutbox("retry")
	logger.WithError(err).Warn("消息发送失败")

	if err := s.queue.IncrementRetryCount(ctx, msg.ID); err != nil {
		logger.WithError(err).Error("增加重试次数失败")
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.queue.MarkAsFailed(ctx, msg.ID); err != nil {
			logger.WithError(err).Error("标记消息失败状态失败")
		} else {
			s.metrics.RecordOutbox("failed")
			logger.Error("消息超过最大重试次数，标记为失败")
		}
	}
	return false
}

// LogPublisher 未接入 Kafka 时把事件写入日志
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) SendMessage(topic, key, value string) error {
	p.Log.WithFields(logrus.Fields{"topic": topic, "key": key}).Info(value)
	return nil
}
