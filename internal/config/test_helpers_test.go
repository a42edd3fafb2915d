package config

import (
	"os"
	"path/filepath"
	"testing"
)

// testConfigPath 返回 testdata 下的配置，并清空所有绑定的环境变量，
// 避免宿主机上的 PORT、LOG_LEVEL 等影响断言。
func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	clearBoundEnv(t)
	return filepath.Join("testdata", name)
}

func clearBoundEnv(t *testing.T) {
	t.Helper()
	for _, names := range envBindings {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
