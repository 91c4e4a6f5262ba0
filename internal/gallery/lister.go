package gallery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/memo"
	"github.com/photo365/photo365/internal/pathguard"
	"github.com/photo365/photo365/internal/thumbnail"
)

// TextFile 是目录说明文字的文件名。
const TextFile = "index.txt"

var imageSuffixes = []string{".jpg", ".jpeg"}

// Folder 是列表中的子目录，Text 仅在目录可见且存在 index.txt 时填充。
type Folder struct {
	Path pathguard.Path `json:"path"`
	Text *string        `json:"text,omitempty"`
}

// Image 是目录中的一张源图。
type Image struct {
	Path pathguard.Path `json:"path"`
}

// listKey 按 (路径, 身份) 区分缓存条目，避免不同身份间泄漏可见性结果。
type listKey struct {
	path     pathguard.Path
	identity Identity
}

// ListerOptions 配置列表缓存的淘汰、失败重试与观测。
type ListerOptions struct {
	// MaxEntries 为每个缓存保留的最大条目数，0 表示不限制。
	MaxEntries int
	// FailureRetryAfter > 0 时目录读取失败在该时长后允许重试，否则永久缓存。
	FailureRetryAfter time.Duration
	FolderMetrics     memo.Metrics
	ImageMetrics      memo.Metrics
	// OnImagesLoaded 在某个 key 的图片列表首次成功加载后调用，用于触发预热。
	OnImagesLoaded func(folder pathguard.Path, images []Image)
	Logger         *logrus.Logger
}

// Lister 枚举目录与图片，并通过两个 memo.Cache 对并发的相同请求去重。
type Lister struct {
	root        string
	oracle      *Oracle
	folderOrder Order
	imageOrder  Order
	logger      *logrus.Logger
	onImages    func(pathguard.Path, []Image)
	readDirFn   func(name string) ([]os.DirEntry, error)

	folders *memo.Cache[listKey, []Folder]
	images  *memo.Cache[listKey, []Image]
}

// NewLister 构建 Lister。目录保持读取顺序，图片按路径排序。
func NewLister(root string, oracle *Oracle, opts ListerOptions) *Lister {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	l := &Lister{
		root:        root,
		oracle:      oracle,
		folderOrder: OrderAsEnumerated,
		imageOrder:  OrderByPath,
		logger:      logger,
		onImages:    opts.OnImagesLoaded,
		readDirFn:   os.ReadDir,
	}

	retry := retryPolicy(opts.FailureRetryAfter)
	l.folders = memo.New[listKey, []Folder](l.loadFolders, memo.Options{
		MaxEntries: opts.MaxEntries,
		RetryAfter: retry,
		Metrics:    opts.FolderMetrics,
	})
	l.images = memo.New[listKey, []Image](l.loadImages, memo.Options{
		MaxEntries: opts.MaxEntries,
		RetryAfter: retry,
		Metrics:    opts.ImageMetrics,
	})
	return l
}

func retryPolicy(after time.Duration) func(error) (time.Duration, bool) {
	if after <= 0 {
		return nil
	}
	return func(err error) (time.Duration, bool) {
		if errors.Is(err, ErrFs) {
			return after, true
		}
		return 0, false
	}
}

// ListFolders 返回 raw 下对 id 可见的子目录。raw 本身对 id 不可见时返回空列表。
func (l *Lister) ListFolders(ctx context.Context, raw string, id Identity) ([]Folder, error) {
	p, err := pathguard.Normalize(raw)
	if err != nil {
		return nil, newError(KindNotAllowed, "list_folders", pathguard.Path(raw), err)
	}
	if !l.oracle.IsVisible(ctx, p, id) {
		return []Folder{}, nil
	}
	return l.visibleFolders(ctx, p, id)
}

// ListImages 返回 raw 目录下按路径排序的图片；目录对 id 隐藏时返回 NotAllowed。
func (l *Lister) ListImages(ctx context.Context, raw string, id Identity) ([]Image, error) {
	p, err := pathguard.Normalize(raw)
	if err != nil {
		return nil, newError(KindNotAllowed, "list_images", pathguard.Path(raw), err)
	}
	return l.visibleImages(ctx, p, id)
}

// Stats 返回目录缓存与图片缓存的统计。
func (l *Lister) Stats() (folders, images memo.Stats) {
	return l.folders.Stats(), l.images.Stats()
}

func (l *Lister) visibleFolders(ctx context.Context, p pathguard.Path, id Identity) ([]Folder, error) {
	folders, err := l.folders.Get(ctx, listKey{path: p, identity: id})
	if err != nil {
		return nil, cacheFailure("list_folders", p, err)
	}
	return slices.Clone(folders), nil
}

func (l *Lister) visibleImages(ctx context.Context, p pathguard.Path, id Identity) ([]Image, error) {
	if !l.oracle.IsVisible(ctx, p, id) {
		l.logger.WithFields(logging.PhotoFields("list_images", p.String(), id.String(), 0)).
			Warn("hidden folder requested")
		return nil, notAllowed("list_images", p, "folder hidden")
	}
	images, err := l.images.Get(ctx, listKey{path: p, identity: id})
	if err != nil {
		return nil, cacheFailure("list_images", p, err)
	}
	return slices.Clone(images), nil
}

func cacheFailure(op string, p pathguard.Path, err error) error {
	if isContextErr(err) {
		return err
	}
	return newError(KindCache, op, p, err)
}

func (l *Lister) loadFolders(ctx context.Context, key listKey) ([]Folder, error) {
	entries, err := l.readDir(key.path, "list_folders", key.identity)
	if err != nil {
		return nil, err
	}

	folders := make([]Folder, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == thumbnail.DirName || !l.isDir(key.path, entry) {
			continue
		}
		child := key.path.Join(entry.Name())
		if !l.oracle.IsVisible(ctx, child, key.identity) {
			continue
		}
		folders = append(folders, Folder{Path: child, Text: l.readText(child)})
	}
	sortFolders(l.folderOrder, folders)
	return folders, nil
}

func (l *Lister) loadImages(ctx context.Context, key listKey) ([]Image, error) {
	entries, err := l.readDir(key.path, "list_images", key.identity)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(entries))
	for _, entry := range entries {
		if !hasImageSuffix(entry.Name()) || l.isDir(key.path, entry) {
			continue
		}
		images = append(images, Image{Path: key.path.Join(entry.Name())})
	}
	sortImages(l.imageOrder, images)

	if l.onImages != nil && len(images) > 0 {
		l.onImages(key.path, slices.Clone(images))
	}
	return images, nil
}

func (l *Lister) readDir(p pathguard.Path, op string, id Identity) ([]os.DirEntry, error) {
	entries, err := l.readDirFn(p.Abs(l.root))
	if err != nil {
		l.logger.WithFields(logging.PhotoFields(op, p.String(), id.String(), 0)).
			Warnf("read dir: %v", err)
		return nil, newError(KindFs, op, p, err)
	}
	return entries, nil
}

// isDir 跟随符号链接判断目录项是否为目录。
func (l *Lister) isDir(parent pathguard.Path, entry os.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(parent.Join(entry.Name()).Abs(l.root))
	return err == nil && info.IsDir()
}

func (l *Lister) readText(folder pathguard.Path) *string {
	data, err := os.ReadFile(folder.Join(TextFile).Abs(l.root))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.WithFields(logging.PhotoFields("read_text", folder.String(), "", 0)).
				Warnf("read %s: %v", TextFile, err)
		}
		return nil
	}
	text := string(data)
	return &text
}

func hasImageSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
