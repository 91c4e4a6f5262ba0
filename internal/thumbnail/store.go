package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/imaging"
	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/pathguard"
)

var (
	// ErrDecode 表示源图无法解码。
	ErrDecode = imaging.ErrDecode
	// ErrEncode 表示派生图编码失败。
	ErrEncode = imaging.ErrEncode
	// ErrSourceMissing 表示源图不存在或不是普通文件。
	ErrSourceMissing = errors.New("thumbnail source missing")

	// errCorrupt 标记无法解析为 WebP 的派生文件，按缺失处理。
	errCorrupt = fmt.Errorf("%w: corrupt derivative", cache.ErrNotFound)
)

// Metrics 记录派生图复用与生成事件；为 nil 时忽略。
type Metrics interface {
	ObserveReuse()
	ObserveGenerate(duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveReuse()                        {}
func (noopMetrics) ObserveGenerate(time.Duration, error) {}

// Options 配置 Store 的计算池、预热并发与观测组件。
type Options struct {
	Pool *imaging.Pool
	// WarmupWorkers 限制批量预热时同一源图并行渲染的尺寸数，<=0 时等于计算池容量。
	WarmupWorkers int
	Logger        *logrus.Logger
	Metrics       Metrics
}

// Store 负责图片派生文件的查找、生成与持久化。
type Store struct {
	root          string
	derivs        cache.Store
	pool          *imaging.Pool
	warmupWorkers int
	logger        *logrus.Logger
	metrics       Metrics

	inflight singleflight.Group
}

// New 构建 Store；root 为照片根目录，derivs 为写入同一根目录的派生文件存储。
func New(root string, derivs cache.Store, opts Options) *Store {
	pool := opts.Pool
	if pool == nil {
		pool = imaging.NewPool(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	workers := opts.WarmupWorkers
	if workers <= 0 {
		workers = pool.Workers()
	}
	return &Store{
		root:          root,
		derivs:        derivs,
		pool:          pool,
		warmupWorkers: workers,
		logger:        logger,
		metrics:       metrics,
	}
}

// GetOrCreate 返回 src 在 size 尺寸下的派生图字节。派生文件存在时直接读取；
// 否则解码、缩放、编码后持久化。同一派生文件同时只会生成一次，调用方取消只影响自身等待。
func (s *Store) GetOrCreate(ctx context.Context, src pathguard.Path, size int) ([]byte, error) {
	loc := locatorFor(DerivativePath(src, size))
	data, err := s.read(ctx, loc)
	if err == nil {
		s.metrics.ObserveReuse()
		return data, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	ch := s.inflight.DoChan(loc.Path, func() (any, error) {
		return s.create(context.WithoutCancel(ctx), src, size, loc)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return bytes.Clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadFolderThumb 读取已持久化的文件夹代表图，不存在时返回 cache.ErrNotFound。
// 损坏的代表图会被删除，同样返回 cache.ErrNotFound 以触发重新解析。
func (s *Store) ReadFolderThumb(ctx context.Context, folder pathguard.Path, size int) ([]byte, error) {
	loc := locatorFor(FolderThumbPath(folder, size))
	data, err := s.read(ctx, loc)
	if errors.Is(err, errCorrupt) {
		s.discard(ctx, loc)
	}
	return data, err
}

// PersistFolderThumb 将代表图字节原子写入文件夹自身的派生文件。
func (s *Store) PersistFolderThumb(ctx context.Context, folder pathguard.Path, size int, data []byte) error {
	target := FolderThumbPath(folder, size)
	if err := s.derivs.Write(ctx, locatorFor(target), data); err != nil {
		return fmt.Errorf("persist folder thumb %s: %w", target, err)
	}
	s.logger.WithFields(logging.PhotoFields("folder_thumb_persist", folder.String(), "", size)).
		WithField("bytes", humanize.Bytes(uint64(len(data)))).
		Info("folder thumbnail persisted")
	return nil
}

// read 读取派生文件并校验 WebP 头部，校验失败返回 errCorrupt。
func (s *Store) read(ctx context.Context, loc cache.Locator) ([]byte, error) {
	data, err := s.derivs.Read(ctx, loc)
	if err != nil {
		return nil, err
	}
	if !imaging.ValidWebP(data) {
		return nil, errCorrupt
	}
	return data, nil
}

// discard 删除损坏的派生文件，失败只记录日志。
func (s *Store) discard(ctx context.Context, loc cache.Locator) {
	entry := s.logger.WithFields(logging.PhotoFields("derivative_discard", loc.Path, "", 0))
	if err := s.derivs.Remove(ctx, loc); err != nil {
		entry.Warnf("remove corrupt derivative: %v", err)
		return
	}
	entry.Warn("corrupt derivative removed")
}

func (s *Store) create(ctx context.Context, src pathguard.Path, size int, loc cache.Locator) ([]byte, error) {
	// 排队期间其它调用可能已经写入同一派生文件。
	data, err := s.read(ctx, loc)
	if err == nil {
		s.metrics.ObserveReuse()
		return data, nil
	}
	if errors.Is(err, errCorrupt) {
		s.discard(ctx, loc)
	}
	img, err := s.decodeSource(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, src, img, size, loc)
}

// decodeSource 在 I/O 侧读取源文件，再进入计算池解码。
func (s *Store) decodeSource(ctx context.Context, src pathguard.Path) (*image.RGBA, error) {
	abs := src.Abs(s.root)
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", ErrSourceMissing, src)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	var img *image.RGBA
	err = s.pool.Do(ctx, func() error {
		decoded, derr := imaging.Decode(bytes.NewReader(raw))
		img = decoded
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return img, nil
}

// render 在计算池内缩放编码，并把结果写入派生文件。
func (s *Store) render(ctx context.Context, src pathguard.Path, img image.Image, size int, loc cache.Locator) ([]byte, error) {
	start := time.Now()
	var data []byte
	err := s.pool.Do(ctx, func() error {
		out, rerr := imaging.Thumbnail(img, size)
		data = out
		return rerr
	})
	if err == nil {
		err = s.derivs.Write(ctx, loc, data)
	}
	s.metrics.ObserveGenerate(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s@%d: %w", src, size, err)
	}

	s.logger.WithFields(logging.PhotoFields("thumbnail_generate", src.String(), "", size)).
		WithFields(logrus.Fields{
			"bytes":      humanize.Bytes(uint64(len(data))),
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Debug("derivative generated")
	return data, nil
}
