package imaging

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool 限制同时进行的解码/缩放/编码数量，避免缩略图计算挤占目录读取等 I/O 请求。
type Pool struct {
	sem     *semaphore.Weighted
	workers int
}

// NewPool 创建容量为 workers 的计算池，workers <= 0 时使用 CPU 核数。
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

// Workers 返回池容量。
func (p *Pool) Workers() int {
	return p.workers
}

// Do 在获得一个计算槽位后执行 fn；等待槽位期间 ctx 取消会直接返回。
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
