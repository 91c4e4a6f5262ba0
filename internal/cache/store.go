package cache

import (
	"context"
	"errors"
)

// Store 负责管理派生文件（缩略图、文件夹代表图）的读写。磁盘布局遵循：
//
//	<PhotoDir>/<sub>/.thumbs/<file>-<size>.webp   # 图片缩略图
//	<PhotoDir>/<folder>/thumb-<size>              # 文件夹代表图
//
// Store 本身不关心布局规则，只负责把 Locator 映射到根目录下的文件。
// 派生文件均为几十 KB 的 WebP，整体读入内存即可。
type Store interface {
	// Read 返回条目的完整内容。条目不存在或是目录时返回 ErrNotFound。
	Read(ctx context.Context, locator Locator) ([]byte, error)

	// Exists 仅检查条目是否存在，不打开文件。
	Exists(ctx context.Context, locator Locator) (bool, error)

	// Write 通过临时文件 + rename 原子写入条目，失败时清理临时文件；
	// 父目录不存在时自动创建。
	Write(ctx context.Context, locator Locator, data []byte) error

	// Remove 删除条目，条目不存在时不报错。
	Remove(ctx context.Context, locator Locator) error
}

// Locator 唯一定位一个派生文件，Path 为相对根目录的斜杠路径。
type Locator struct {
	Path string
}

// ErrNotFound 表示条目不存在。
var ErrNotFound = errors.New("cache entry not found")
