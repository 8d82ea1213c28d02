package attachment

import (
	"context"
	"log"
	"time"
)

// Reconciler 巡检卡死的提取任务
// 超过阈值仍在 processing 的附件重新入队，避免永久 limbo
type Reconciler struct {
	repo      Repository
	pool      *Pool
	interval  time.Duration
	threshold time.Duration
}

// NewReconciler 创建巡检任务
func NewReconciler(repo Repository, pool *Pool, interval, threshold time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &Reconciler{
		repo:      repo,
		pool:      pool,
		interval:  interval,
		threshold: threshold,
	}
}

// Run 周期巡检，ctx 取消时退出
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep 单次巡检
func (r *Reconciler) sweep() {
	stuck, err := r.repo.ListStuckProcessing(r.threshold)
	if err != nil {
		log.Printf("Warning: reconciler failed to list stuck attachments: %v", err)
		return
	}

	for _, att := range stuck {
		ok := r.pool.Enqueue(&Job{
			AttachmentID: att.ID,
			FileName:     att.FileName,
			MimeType:     att.FileType,
			StoragePath:  att.StoragePath,
		})
		if ok {
			log.Printf("Requeued stuck attachment %s (stuck since %s)", att.ID, att.UpdatedAt.Format(time.RFC3339))
		}
		// 队列满时留待下一轮巡检
	}
}
