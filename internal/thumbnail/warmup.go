package thumbnail

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/pathguard"
)

// WarmupReport 汇总一次批量预热的结果。
type WarmupReport struct {
	Generated int
	Skipped   int
	Failed    int
}

// GenerateAll 为每个源图生成 sizes 中缺失的派生文件：每个源图只解码一次，
// 各尺寸的缩放编码并行执行。任何失败只记录日志并跳过，不会返回给调用方。
func (s *Store) GenerateAll(ctx context.Context, srcs []pathguard.Path, sizes []int) WarmupReport {
	var report WarmupReport
	for _, src := range srcs {
		if ctx.Err() != nil {
			break
		}
		generated, skipped, failed := s.warmSource(ctx, src, sizes)
		report.Generated += generated
		report.Skipped += skipped
		report.Failed += failed
	}
	return report
}

func (s *Store) warmSource(ctx context.Context, src pathguard.Path, sizes []int) (int, int, int) {
	var missing []int
	for _, size := range sizes {
		ok, err := s.derivs.Exists(ctx, locatorFor(DerivativePath(src, size)))
		if err == nil && ok {
			continue
		}
		missing = append(missing, size)
	}
	skipped := len(sizes) - len(missing)
	if len(missing) == 0 {
		return 0, skipped, 0
	}

	img, err := s.decodeSource(ctx, src)
	if err != nil {
		s.logger.WithFields(logging.PhotoFields("thumbnail_warmup", src.String(), "", 0)).
			Warnf("skip source: %v", err)
		return 0, skipped, len(missing)
	}

	var generated, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.warmupWorkers)
	for _, size := range missing {
		g.Go(func() error {
			loc := locatorFor(DerivativePath(src, size))
			_, err, _ := s.inflight.Do(loc.Path, func() (any, error) {
				data, rerr := s.read(ctx, loc)
				if rerr == nil {
					return data, nil
				}
				if !errors.Is(rerr, cache.ErrNotFound) {
					return nil, rerr
				}
				if errors.Is(rerr, errCorrupt) {
					s.discard(ctx, loc)
				}
				return s.render(ctx, src, img, size, loc)
			})
			if err != nil {
				failed.Add(1)
				s.logger.WithFields(logging.PhotoFields("thumbnail_warmup", src.String(), "", size)).
					Warnf("skip size: %v", err)
				return nil
			}
			generated.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(generated.Load()), skipped, int(failed.Load())
}
