package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/pathguard"
	"github.com/photo365/photo365/internal/thumbnail"
)

// errNoContent 表示整个子树中没有可用于代表图的图片。
var errNoContent = errors.New("no representable content")

// Resolver 为没有直接图片的目录递归推导代表缩略图。
type Resolver struct {
	root   string
	lister *Lister
	thumbs *thumbnail.Store
	logger *logrus.Logger

	inflight singleflight.Group
}

// NewResolver 构建 Resolver。
func NewResolver(root string, lister *Lister, thumbs *thumbnail.Store, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{root: root, lister: lister, thumbs: thumbs, logger: logger}
}

// Resolve 返回 folder 在 size 尺寸下的代表缩略图，依次尝试：
//
//  1. 已持久化的 folder/thumb-<size>
//  2. 目录内名为 thumb 的图片
//  3. 目录内排序后的第一张图片
//  4. 第一个可见子目录的代表图（结果持久化为本目录的代表图）
//
// 相同 (folder, size, id) 的并发调用共享一次计算。
func (r *Resolver) Resolve(ctx context.Context, folder pathguard.Path, size int, id Identity) ([]byte, error) {
	key := folder.String() + "\x00" + strconv.Itoa(size) + "\x00" + id.String()
	ch := r.inflight.DoChan(key, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), folder, size, id, make(map[string]struct{}))
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

func (r *Resolver) resolve(ctx context.Context, folder pathguard.Path, size int, id Identity, visited map[string]struct{}) ([]byte, error) {
	const op = "folder_thumbnail"

	data, err := r.thumbs.ReadFolderThumb(ctx, folder, size)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		r.logger.WithFields(logging.PhotoFields(op, folder.String(), id.String(), size)).
			Warnf("read persisted folder thumb: %v", err)
	}

	canonical := r.canonical(folder)
	if _, seen := visited[canonical]; seen {
		return nil, newError(KindThumb, op, folder, fmt.Errorf("directory cycle at %s", canonical))
	}
	visited[canonical] = struct{}{}

	data, err = r.thumbs.GetOrCreate(ctx, folder.Join(thumbnail.FolderThumbName), size)
	if err == nil {
		return data, nil
	}
	if isContextErr(err) {
		return nil, err
	}

	if images, err := r.lister.visibleImages(ctx, folder, id); err == nil && len(images) > 0 {
		thumb, terr := r.thumbs.GetOrCreate(ctx, images[0].Path, size)
		if terr != nil {
			return nil, wrapThumbErr(op, images[0].Path, terr)
		}
		return thumb, nil
	}

	folders, err := r.lister.visibleFolders(ctx, folder, id)
	if err != nil || len(folders) == 0 {
		return nil, newError(KindThumb, op, folder, errNoContent)
	}

	data, err = r.resolve(ctx, folders[0].Path, size, id, visited)
	if err != nil {
		return nil, err
	}
	if err := r.thumbs.PersistFolderThumb(ctx, folder, size, data); err != nil {
		r.logger.WithFields(logging.PhotoFields(op, folder.String(), id.String(), size)).
			Warnf("persist folder thumb: %v", err)
	}
	return data, nil
}

// canonical 返回解析符号链接后的目录路径，用于识别循环。
func (r *Resolver) canonical(folder pathguard.Path) string {
	abs := folder.Abs(r.root)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
