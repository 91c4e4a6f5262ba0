// Package pathguard validates user supplied archive paths and turns them into
// the canonical slash-separated form every other package works with. A Path
// is always absolute relative to the archive root ("/", "/Pets",
// "/Pets/cat.jpg") and never contains a ".." sequence. Entry points call
// Normalize themselves instead of trusting values validated upstream.
package pathguard

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// Root 表示归档根目录。
const Root Path = "/"

// ErrNotAllowed 表示路径包含目录穿越序列或非法字符。
var ErrNotAllowed = errors.New("path not allowed")

// Path 是相对于归档根目录的规范化路径，同时作为缓存键使用。
type Path string

// Normalize 校验原始路径并返回规范形式；任何包含 ".." 的输入都会被拒绝，
// 不做“尽力修正”。
func Normalize(raw string) (Path, error) {
	if strings.Contains(raw, "..") || strings.ContainsRune(raw, 0) {
		return "", ErrNotAllowed
	}
	return Path(path.Clean("/" + raw)), nil
}

// MustNormalize 用于测试与常量路径，校验失败时 panic。
func MustNormalize(raw string) Path {
	p, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return string(p)
}

// Rel 去掉一个前导与一个结尾斜杠，供拼接文件名使用。
func (p Path) Rel() string {
	rel := strings.TrimPrefix(string(p), "/")
	return strings.TrimSuffix(rel, "/")
}

// IsRoot 报告路径是否指向归档根目录。
func (p Path) IsRoot() bool {
	return p.Rel() == ""
}

// Join 在当前路径下追加一个目录项名称。
func (p Path) Join(name string) Path {
	return Path(path.Join("/", string(p), name))
}

// Dir 返回父目录；根目录的父目录仍是根目录。
func (p Path) Dir() Path {
	return Path(path.Dir(path.Join("/", string(p))))
}

// Base 返回最后一个路径段。
func (p Path) Base() string {
	return path.Base(string(p))
}

// Abs 将逻辑路径映射为 root 下的文件系统路径。
func (p Path) Abs(root string) string {
	rel := p.Rel()
	if rel == "" {
		return filepath.Clean(root)
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}
