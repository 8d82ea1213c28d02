package attachment

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ashwinyue/advisor-ai/internal/model"
	"github.com/ashwinyue/advisor-ai/internal/service/file"
)

// Job 提取任务
type Job struct {
	AttachmentID string
	FileName     string
	MimeType     string
	StoragePath  string
}

// Pool 有界提取工作池
// 固定数量 worker 消费一个有界队列，入队失败由调用方处理
type Pool struct {
	jobs       chan *Job
	workers    int
	jobTimeout time.Duration

	repo      Repository
	storage   file.Storage
	extractor Extractor

	// 在途任务集合，防止巡检重复入队同一附件
	mu       sync.Mutex
	inflight map[string]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewPool 创建工作池
func NewPool(repo Repository, storage file.Storage, extractor Extractor, workers, queueSize int, jobTimeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool{
		jobs:       make(chan *Job, queueSize),
		workers:    workers,
		jobTimeout: jobTimeout,
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		inflight:   make(map[string]struct{}),
	}
}

// Start 启动 worker
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop 停止工作池，等待在途任务完成
func (p *Pool) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		close(p.jobs)
	})
	p.wg.Wait()
}

// Enqueue 入队提取任务
// 同一附件已在队列或处理中时直接返回 true，不重复入队
// 队列满时立即返回 false，绝不阻塞上传请求
func (p *Pool) Enqueue(job *Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[job.AttachmentID]; ok {
		return true
	}
	select {
	case p.jobs <- job:
		p.inflight[job.AttachmentID] = struct{}{}
		return true
	default:
		return false
	}
}

func (p *Pool) release(attachmentID string) {
	p.mu.Lock()
	delete(p.inflight, attachmentID)
	p.mu.Unlock()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, job)
		}
	}
}

// process 执行单个提取任务
// 终态写入只发生一次：要么 MarkCompleted 要么 MarkFailed
func (p *Pool) process(ctx context.Context, job *Job) {
	defer p.release(job.AttachmentID)

	if err := p.repo.MarkProcessing(job.AttachmentID); err != nil {
		log.Printf("Warning: failed to mark attachment %s processing: %v", job.AttachmentID, err)
		return
	}

	jobCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	data, err := p.readFile(jobCtx, job.StoragePath)
	if err != nil {
		msg := err.Error()
		if merr := p.repo.MarkFailed(job.AttachmentID, "[Error processing file: "+msg+"]", msg); merr != nil {
			log.Printf("Warning: failed to mark attachment %s failed: %v", job.AttachmentID, merr)
		}
		return
	}

	result := p.extractor.ProcessFile(jobCtx, job.FileName, job.MimeType, data)

	var werr error
	if result.Status == model.StatusCompleted {
		werr = p.repo.MarkCompleted(job.AttachmentID, result.Content, result.Metadata)
	} else {
		werr = p.repo.MarkFailed(job.AttachmentID, result.Content, result.ErrorMessage)
	}
	if werr != nil {
		// 行留在 processing，由巡检任务重新入队
		log.Printf("Warning: failed to store extraction result for %s: %v", job.AttachmentID, werr)
	}
}

func (p *Pool) readFile(ctx context.Context, storagePath string) ([]byte, error) {
	rc, err := p.storage.Get(ctx, storagePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
