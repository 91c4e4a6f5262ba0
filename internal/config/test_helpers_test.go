package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

// writeTempConfig 写入临时 config.toml，并清空 PHOTO_DIR 以免环境变量覆盖文件内容。
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv(PhotoDirEnv, "")
	path := filepath.Join(t.TempDir(), DefaultPath)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
