package gallery

import (
	"slices"
	"strings"
)

// Order 是列表结果的排序策略。
type Order int

const (
	// OrderAsEnumerated 保留目录读取顺序（os.ReadDir 按文件名排序，因此可复现）。
	OrderAsEnumerated Order = iota
	// OrderByPath 按完整路径字节序升序。
	OrderByPath
)

func (o Order) String() string {
	if o == OrderByPath {
		return "by_path"
	}
	return "as_enumerated"
}

func sortFolders(order Order, folders []Folder) {
	if order == OrderByPath {
		slices.SortStableFunc(folders, func(a, b Folder) int {
			return strings.Compare(a.Path.String(), b.Path.String())
		})
	}
}

func sortImages(order Order, images []Image) {
	if order == OrderByPath {
		slices.SortStableFunc(images, func(a, b Image) int {
			return strings.Compare(a.Path.String(), b.Path.String())
		})
	}
}
