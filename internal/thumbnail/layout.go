package thumbnail

import (
	"strconv"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/pathguard"
)

// DirName 是每个目录下存放图片派生文件的子目录名，列表时需要排除。
const DirName = ".thumbs"

// FolderThumbName 是文件夹内可手动放置的代表图文件名，也是文件夹代表图派生文件的前缀。
const FolderThumbName = "thumb"

// DerivativePath 返回 src 在 size 尺寸下的派生文件路径。
func DerivativePath(src pathguard.Path, size int) pathguard.Path {
	return src.Dir().Join(DirName).Join(src.Base() + "-" + strconv.Itoa(size) + ".webp")
}

// FolderThumbPath 返回文件夹代表图的派生文件路径（无扩展名）。
func FolderThumbPath(folder pathguard.Path, size int) pathguard.Path {
	return folder.Join(FolderThumbName + "-" + strconv.Itoa(size))
}

func locatorFor(p pathguard.Path) cache.Locator {
	return cache.Locator{Path: p.String()}
}
