package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/memo"
	"github.com/photo365/photo365/internal/pathguard"
	"github.com/photo365/photo365/internal/thumbnail"
)

// Options 汇总 Service 的依赖与策略。
type Options struct {
	Root   string
	Thumbs *thumbnail.Store
	// MaxThumbnailSize 限制可请求的最大边长，<=0 时不限制。
	MaxThumbnailSize int
	// WarmupSizes 为空时不做预热。
	WarmupSizes         []int
	ListingCacheEntries int
	FailureRetryAfter   time.Duration
	FolderCacheMetrics  memo.Metrics
	ImageCacheMetrics   memo.Metrics
	Logger              *logrus.Logger
}

// Service 是归档读取侧的统一入口，每个方法都会独立校验原始路径。
type Service struct {
	root        string
	maxSize     int
	warmupSizes []int
	logger      *logrus.Logger

	oracle   *Oracle
	lister   *Lister
	resolver *Resolver
	thumbs   *thumbnail.Store

	warmCtx    context.Context
	warmCancel context.CancelFunc
	warmMu     sync.Mutex
	warmClosed bool
	warmWG     sync.WaitGroup
}

// NewService 组装 Oracle、Lister 与 Resolver。
func NewService(opts Options) (*Service, error) {
	if opts.Root == "" {
		return nil, errors.New("gallery root required")
	}
	if opts.Thumbs == nil {
		return nil, errors.New("thumbnail store required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	warmCtx, warmCancel := context.WithCancel(context.Background())
	s := &Service{
		root:        opts.Root,
		maxSize:     opts.MaxThumbnailSize,
		warmupSizes: append([]int(nil), opts.WarmupSizes...),
		logger:      logger,
		thumbs:      opts.Thumbs,
		warmCtx:     warmCtx,
		warmCancel:  warmCancel,
	}
	s.oracle = NewOracle(opts.Root, logger)
	s.lister = NewLister(opts.Root, s.oracle, ListerOptions{
		MaxEntries:        opts.ListingCacheEntries,
		FailureRetryAfter: opts.FailureRetryAfter,
		FolderMetrics:     opts.FolderCacheMetrics,
		ImageMetrics:      opts.ImageCacheMetrics,
		OnImagesLoaded:    s.warm,
		Logger:            logger,
	})
	s.resolver = NewResolver(opts.Root, s.lister, opts.Thumbs, logger)
	return s, nil
}

// ListFolders 列出 raw 下对 id 可见的子目录。
func (s *Service) ListFolders(ctx context.Context, raw string, id Identity) ([]Folder, error) {
	return s.lister.ListFolders(ctx, raw, id)
}

// ListImages 列出 raw 目录下的图片，首次加载会在后台预热常用尺寸。
func (s *Service) ListImages(ctx context.Context, raw string, id Identity) ([]Image, error) {
	return s.lister.ListImages(ctx, raw, id)
}

// FolderText 返回目录的 index.txt 内容；目录不可见或没有说明文字时返回 ok=false。
func (s *Service) FolderText(ctx context.Context, raw string, id Identity) (string, bool, error) {
	p, err := pathguard.Normalize(raw)
	if err != nil {
		return "", false, newError(KindNotAllowed, "get_text", pathguard.Path(raw), err)
	}
	if !s.oracle.IsVisible(ctx, p, id) {
		return "", false, nil
	}
	data, err := os.ReadFile(p.Join(TextFile).Abs(s.root))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithFields(logging.PhotoFields("get_text", p.String(), id.String(), 0)).
				Warnf("read %s: %v", TextFile, err)
		}
		return "", false, nil
	}
	return string(data), true, nil
}

// GetThumbnail 返回图片在 size 尺寸下的缩略图；图片所在目录对 id 隐藏时返回 NotAllowed。
// 派生目录内的路径一律拒绝，只接受 .jpg/.jpeg 源图。
func (s *Service) GetThumbnail(ctx context.Context, raw string, size int, id Identity) ([]byte, error) {
	const op = "get_thumbnail"
	p, err := pathguard.Normalize(raw)
	if err != nil {
		return nil, newError(KindNotAllowed, op, pathguard.Path(raw), err)
	}
	if err := s.checkSize(op, p, size); err != nil {
		return nil, err
	}
	if inDerivativeDir(p) {
		return nil, notAllowed(op, p, "derivative path")
	}
	if !s.oracle.IsVisible(ctx, p.Dir(), id) {
		s.logger.WithFields(logging.PhotoFields(op, p.String(), id.String(), size)).
			Warn("hidden folder requested")
		return nil, notAllowed(op, p, "folder hidden")
	}
	if !hasImageSuffix(p.Base()) {
		return nil, newError(KindThumb, op, p, errUnsupportedSource)
	}

	data, err := s.thumbs.GetOrCreate(ctx, p, size)
	if err != nil {
		err = wrapThumbErr(op, p, err)
		s.logFailure(op, p, id, size, err)
		return nil, err
	}
	return data, nil
}

// GetFolderThumbnail 返回目录的代表缩略图。
func (s *Service) GetFolderThumbnail(ctx context.Context, raw string, size int, id Identity) ([]byte, error) {
	const op = "get_folder_thumbnail"
	p, err := pathguard.Normalize(raw)
	if err != nil {
		return nil, newError(KindNotAllowed, op, pathguard.Path(raw), err)
	}
	if err := s.checkSize(op, p, size); err != nil {
		return nil, err
	}
	if inDerivativeDir(p) {
		return nil, notAllowed(op, p, "derivative path")
	}
	if !s.oracle.IsVisible(ctx, p, id) {
		s.logger.WithFields(logging.PhotoFields(op, p.String(), id.String(), size)).
			Warn("hidden folder requested")
		return nil, notAllowed(op, p, "folder hidden")
	}

	data, err := s.resolver.Resolve(ctx, p, size, id)
	if err != nil {
		s.logFailure(op, p, id, size, err)
		return nil, err
	}
	return data, nil
}

// CacheStats 返回目录与图片列表缓存的统计。
func (s *Service) CacheStats() (folders, images memo.Stats) {
	return s.lister.Stats()
}

// Close 停止接收新的预热任务并等待进行中的预热完成；ctx 结束时取消剩余预热。
func (s *Service) Close(ctx context.Context) error {
	s.warmMu.Lock()
	s.warmClosed = true
	s.warmMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.warmWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.warmCancel()
		return nil
	case <-ctx.Done():
		s.warmCancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) checkSize(op string, p pathguard.Path, size int) error {
	if size < 1 || (s.maxSize > 0 && size > s.maxSize) {
		return notAllowed(op, p, fmt.Sprintf("size %d out of range", size))
	}
	return nil
}

// inDerivativeDir 判断路径是否落在某一级 .thumbs 目录内；派生文件只能经由源图访问。
func inDerivativeDir(p pathguard.Path) bool {
	for _, seg := range strings.Split(p.Rel(), "/") {
		if seg == thumbnail.DirName {
			return true
		}
	}
	return false
}

// warm 在后台为新加载的图片列表生成常用尺寸，不阻塞列表响应。
func (s *Service) warm(folder pathguard.Path, images []Image) {
	if len(s.warmupSizes) == 0 {
		return
	}
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	if s.warmClosed {
		return
	}
	srcs := make([]pathguard.Path, len(images))
	for i, img := range images {
		srcs[i] = img.Path
	}

	s.warmWG.Add(1)
	go func() {
		defer s.warmWG.Done()
		report := s.thumbs.GenerateAll(s.warmCtx, srcs, s.warmupSizes)
		s.logger.WithFields(logging.PhotoFields("thumbnail_warmup", folder.String(), "", 0)).
			WithFields(logrus.Fields{
				"generated": report.Generated,
				"skipped":   report.Skipped,
				"failed":    report.Failed,
			}).Info("warm-up finished")
	}()
}

func (s *Service) logFailure(op string, p pathguard.Path, id Identity, size int, err error) {
	if isContextErr(err) {
		return
	}
	entry := s.logger.WithFields(logging.PhotoFields(op, p.String(), id.String(), size)).
		WithField("kind", KindOf(err).String())
	if errors.Is(err, ErrFs) {
		entry.Error(err.Error())
		return
	}
	entry.Warn(err.Error())
}
