package gallery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/pathguard"
)

// HiddenMarker 是隐藏目录的标记文件名，内容为逐行的允许访问身份名。
const HiddenMarker = ".hide"

// Oracle 根据 .hide 标记判断目录对某个身份是否可见。
type Oracle struct {
	root   string
	logger *logrus.Logger
}

// NewOracle 以照片根目录构建 Oracle。
func NewOracle(root string, logger *logrus.Logger) *Oracle {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Oracle{root: root, logger: logger}
}

// IsVisible 判断 folder 对 id 是否可见。标记文件存在但无法读取时按不可见处理。
func (o *Oracle) IsVisible(ctx context.Context, folder pathguard.Path, id Identity) bool {
	if ctx.Err() != nil {
		return false
	}
	marker := folder.Join(HiddenMarker).Abs(o.root)
	if _, err := os.Lstat(marker); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}
		o.logger.WithFields(logging.PhotoFields("visibility_check", folder.String(), id.String(), 0)).
			Warnf("stat hide marker: %v", err)
		return false
	}

	switch {
	case id.IsAnonymous():
		return false
	case id.Name() == SuperUser:
		return true
	case strings.TrimSpace(id.Name()) == "":
		return false
	}

	contents, err := os.ReadFile(marker)
	if err != nil {
		o.logger.WithFields(logging.PhotoFields("visibility_check", folder.String(), id.String(), 0)).
			Warnf("read hide marker: %v", err)
		return false
	}
	return markerAllows(string(contents), id.Name())
}

func markerAllows(contents, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, line := range strings.Split(contents, "\n") {
		if strings.TrimSpace(line) == name {
			return true
		}
	}
	return false
}
