package job

import (
	"context"
	"time"

	"stockledger/internal/repository"

	"github.com/sirupsen/logrus"
)

// OutboxCleanupJob 定期删除超过保留期的已发送消息，FAILED 消息保留供人工处理
type OutboxCleanupJob struct {
	queue     repository.OutboxQueue
	log       logrus.FieldLogger
	stopCh    chan struct{}
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewOutboxCleanupJob(queue repository.OutboxQueue, log logrus.FieldLogger, interval, retention time.Duration, batchSize int) *OutboxCleanupJob {
	return &OutboxCleanupJob{
		queue:     queue,
		log:       log.WithField("job", "OutboxCleanupJob"),
		stopCh:    make(chan struct{}),
		interval:  interval,
		retention: retention,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (j *OutboxCleanupJob) Start(ctx context.Context) {
	j.log.Info("消息清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.Purge(ctx)
		}
	}
}

func (j *OutboxCleanupJob) Stop() {
	close(j.stopCh)
}

// Purge 分批删除直到没有过期消息，返回删除总数
func (j *OutboxCleanupJob) Purge(ctx context.Context) int64 {
	before := j.now().Add(-j.retention)

	var total int64
	for {
		n, err := j.queue.DeleteSentBefore(ctx, before, j.batchSize)
		if err != nil {
			j.log.WithError(err).Error("清理消息失败")
			break
		}
		total += n
		if n == 0 || n < int64(j.batchSize) || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		j.log.WithField("deleted", total).Info("已清理过期消息")
	}
	return total
}
